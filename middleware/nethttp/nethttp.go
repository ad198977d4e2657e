// Package nethttp provides middleware for the standard net/http library
// that enforces rate limiting using github.com/jassus213/rlcore.
//
// It wraps any http.Handler and checks incoming requests against an
// *rlcore.Engine via CheckInfo, so a denial never surfaces as a Go error
// — only as a 429 response with standard X-RateLimit-* headers.
//
// Example usage:
//
//	import (
//	    "net/http"
//	    "github.com/jassus213/rlcore"
//	    "github.com/jassus213/rlcore/middleware/nethttp"
//	)
//
//	func main() {
//	    engine := rlcore.NewEngine(store.NewMemory(context.Background(), time.Minute))
//
//	    mux := http.NewServeMux()
//	    mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
//	        w.Write([]byte("Hello, world!"))
//	    })
//
//	    http.ListenAndServe(":8080", nethttp.Middleware(engine, "100/minute")(mux))
//	}
package nethttp

import (
	"net/http"
	"strconv"

	"github.com/jassus213/rlcore"
)

// KeyFunc derives the rate-limit identity from an inbound request.
type KeyFunc func(*http.Request) (string, error)

// ErrorHandler writes the denial response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, result rlcore.CheckResult)

// Config customizes Middleware.
type Config struct {
	KeyFunc      KeyFunc
	ErrorHandler ErrorHandler
	Logger       rlcore.Logger
	CheckOptions []rlcore.CheckOption
}

// Option configures Config via the functional-options pattern.
type Option func(*Config)

// WithKeyFunc overrides how the rate-limit identity is derived.
func WithKeyFunc(f KeyFunc) Option {
	return func(c *Config) { c.KeyFunc = f }
}

// WithErrorHandler overrides the denial response writer.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) { c.ErrorHandler = h }
}

// WithLogger installs a logger for failures the middleware can't
// otherwise surface (key extraction, engine faults).
func WithLogger(l rlcore.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithCheckOptions passes through rlcore.CheckOption values (algorithm,
// tenant, cost) applied to every request's CheckInfo call.
func WithCheckOptions(opts ...rlcore.CheckOption) Option {
	return func(c *Config) { c.CheckOptions = append(c.CheckOptions, opts...) }
}

// DefaultKeyFunc keys on the request's RemoteAddr.
func DefaultKeyFunc(r *http.Request) (string, error) {
	return r.RemoteAddr, nil
}

// DefaultErrorHandler writes a 429 with Retry-After set from the result.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, result rlcore.CheckResult) {
	w.Header().Set("Retry-After", strconv.FormatInt((result.RetryAfterMs+999)/1000, 10))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Middleware returns a handler wrapper enforcing rate on every request
// through engine.
func Middleware(engine *rlcore.Engine, rate string, opts ...Option) func(http.Handler) http.Handler {
	cfg := &Config{KeyFunc: DefaultKeyFunc, ErrorHandler: DefaultErrorHandler, Logger: noopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := cfg.KeyFunc(r)
			if err != nil {
				cfg.Logger.Errorf("[RateLimiter] failed to extract key: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			result, err := engine.CheckInfo(r.Context(), key, rate, cfg.CheckOptions...)
			if err != nil {
				cfg.Logger.Errorf("[RateLimiter] engine failed for key %q: %v", key, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetEpoch, 10))

			if !result.Allowed {
				cfg.Logger.Debugf("[RateLimiter] denied key %q remaining=%d limit=%d", key, result.Remaining, result.Limit)
				cfg.ErrorHandler(w, r, result)
				return
			}

			cfg.Logger.Debugf("[RateLimiter] allowed key %q remaining=%d limit=%d", key, result.Remaining, result.Limit)
			next.ServeHTTP(w, r)
		})
	}
}
