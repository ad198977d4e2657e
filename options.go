package rlcore

import "time"

// Logger is the logging interface rlcore depends on. Adapters for the
// standard library log package, logrus, zap, and zerolog live in their
// own modules under adapters/.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger discards everything. It is the default so Engine never has
// to nil-check its logger.
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// MetricsRecorder is the hook the core calls on every decision when
// metrics are enabled. The exporter itself (Prometheus, OTel, ...) is an
// external collaborator — see metrics/prometheus — not part of the core.
type MetricsRecorder interface {
	ObserveCheck(algorithm Algorithm, allowed bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCheck(Algorithm, bool, time.Duration) {}

// Config holds Engine-wide settings. Built via NewConfig plus
// EngineOptions; never constructed directly by callers.
type Config struct {
	KeyPrefix        string
	DefaultAlgorithm Algorithm
	CallTimeout      time.Duration
	MetricsEnabled   bool
	Logger           Logger
	Metrics          MetricsRecorder
}

// EngineOption configures an Engine via the functional-options pattern.
type EngineOption func(*Config)

// NewConfig builds a Config with the library defaults, then applies opts
// in order.
func NewConfig(opts ...EngineOption) *Config {
	cfg := &Config{
		KeyPrefix:        "ratelimit",
		DefaultAlgorithm: FixedWindow,
		CallTimeout:      5 * time.Second,
		Logger:           noopLogger{},
		Metrics:          noopMetrics{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithKeyPrefix overrides the default "ratelimit" prefix prepended to
// every derived key.
func WithKeyPrefix(prefix string) EngineOption {
	return func(c *Config) {
		if prefix != "" {
			c.KeyPrefix = prefix
		}
	}
}

// WithDefaultAlgorithm sets the algorithm Check uses when the caller
// doesn't pass WithAlgorithm.
func WithDefaultAlgorithm(a Algorithm) EngineOption {
	return func(c *Config) {
		if a.valid() {
			c.DefaultAlgorithm = a
		}
	}
}

// WithCallTimeout bounds the store calls of one Check, CheckInfo,
// GetUsage, or Reset call: a single deadline covers both the clock read
// and the script run or read that follows it. RedisStore reports an
// expired deadline as BackendUnavailable.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		if d > 0 {
			c.CallTimeout = d
		}
	}
}

// WithLogger installs a custom Logger.
func WithLogger(l Logger) EngineOption {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithMetrics installs a MetricsRecorder and enables metrics emission.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
			c.MetricsEnabled = true
		}
	}
}
