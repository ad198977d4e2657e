package rlcore

import (
	"regexp"
	"strconv"
	"strings"
)

// Rate is a parsed (limit, window) policy. L is a positive request count;
// W is the window in seconds, always one of 1, 60, 3600, 86400 for a
// string parsed via ParseRate.
type Rate struct {
	Limit  int64
	Window int64 // seconds
}

var rateExpr = regexp.MustCompile(`^(\d+)\s*/\s*([a-zA-Z]+)$`)

var unitSeconds = map[string]int64{
	"second": 1, "seconds": 1,
	"minute": 60, "minutes": 60,
	"hour": 3600, "hours": 3600,
	"day": 86400, "days": 86400,
}

// ParseRate converts a "<N>/<unit>" string into a Rate. unit is one of
// second(s), minute(s), hour(s), day(s), case-insensitive; whitespace
// around N, the slash, and unit is tolerated. Returns a *Error{Kind:
// KindMalformedRate} when the pattern doesn't match, N <= 0, or unit is
// unrecognized.
func ParseRate(s string) (Rate, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.Join(strings.Fields(trimmed), "")
	m := rateExpr.FindStringSubmatch(trimmed)
	if m == nil {
		return Rate{}, &Error{Kind: KindMalformedRate, Op: "ParseRate", Err: malformed(s)}
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return Rate{}, &Error{Kind: KindMalformedRate, Op: "ParseRate", Err: malformed(s)}
	}

	window, ok := unitSeconds[strings.ToLower(m[2])]
	if !ok {
		return Rate{}, &Error{Kind: KindMalformedRate, Op: "ParseRate", Err: malformed(s)}
	}

	return Rate{Limit: n, Window: window}, nil
}

type malformedRateError string

func (e malformedRateError) Error() string {
	return "rlcore: not a valid rate string: " + string(e)
}

func malformed(s string) error {
	return malformedRateError(s)
}
