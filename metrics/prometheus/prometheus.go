// Package prometheus implements rlcore.MetricsRecorder on top of
// prometheus/client_golang, exporting a check counter by algorithm and
// outcome and a check-duration histogram by algorithm.
package prometheus

import (
	"time"

	"github.com/jassus213/rlcore"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements rlcore.MetricsRecorder.
type Recorder struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
}

// NewRecorder builds a Recorder and registers its collectors against reg.
// Pass prometheus.DefaultRegisterer for the global registry. Namespace
// and subsystem are applied to both metrics; either may be empty.
func NewRecorder(reg prometheus.Registerer, namespace, subsystem string) (*Recorder, error) {
	r := &Recorder{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checks_total",
				Help:      "Total number of rate limit checks, by algorithm and outcome.",
			},
			[]string{"algorithm", "allowed"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "check_duration_seconds",
				Help:      "Store round-trip duration for a single check, by algorithm.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"algorithm"},
		),
	}

	for _, c := range []prometheus.Collector{r.checksTotal, r.checkDuration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return r, nil
}

// ObserveCheck implements rlcore.MetricsRecorder.
func (r *Recorder) ObserveCheck(algorithm rlcore.Algorithm, allowed bool, duration time.Duration) {
	allowedLabel := "true"
	if !allowed {
		allowedLabel = "false"
	}
	r.checksTotal.WithLabelValues(string(algorithm), allowedLabel).Inc()
	r.checkDuration.WithLabelValues(string(algorithm)).Observe(duration.Seconds())
}

var _ rlcore.MetricsRecorder = (*Recorder)(nil)
