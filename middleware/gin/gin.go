// Package gin provides a Gin middleware adapter for
// github.com/jassus213/rlcore.
//
// It wraps an *rlcore.Engine and enforces a rate via CheckInfo on every
// request, so a denial never surfaces as a Go error — only as a 429
// response.
//
// Example usage:
//
//	import (
//	    "github.com/gin-gonic/gin"
//	    "github.com/jassus213/rlcore"
//	    ginrl "github.com/jassus213/rlcore/middleware/gin"
//	)
//
//	func main() {
//	    engine := rlcore.NewEngine(store.NewMemory(context.Background(), time.Minute))
//
//	    router := gin.Default()
//	    router.Use(ginrl.RateLimiter(engine, "100/minute"))
//	    router.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })
//	    router.Run(":8080")
//	}
package gin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jassus213/rlcore"
)

// KeyFunc derives the rate-limit identity from an inbound request.
type KeyFunc func(*gin.Context) (string, error)

// ErrorHandler writes the denial response.
type ErrorHandler func(c *gin.Context, result rlcore.CheckResult)

// Config customizes RateLimiter.
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

// DefaultKeyFunc keys on the request's client IP.
func DefaultKeyFunc(c *gin.Context) (string, error) {
	return c.ClientIP(), nil
}

// DefaultErrorHandler writes a 429 with Retry-After set from the result.
func DefaultErrorHandler(c *gin.Context, result rlcore.CheckResult) {
	c.Header("Retry-After", strconv.FormatInt((result.RetryAfterMs+999)/1000, 10))
	c.String(http.StatusTooManyRequests, "rate limit exceeded")
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{}) {}

// RateLimiter builds a Gin middleware that enforces rate on every
// request through engine. It sets the standard X-RateLimit-* headers on
// every response, allowed or not.
func RateLimiter(engine *rlcore.Engine, rate string, opts ...Option) gin.HandlerFunc {
	cfg := &Config{KeyFunc: DefaultKeyFunc, ErrorHandler: DefaultErrorHandler, Logger: noopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		key, err := cfg.KeyFunc(c)
		if err != nil {
			cfg.Logger.Errorf("[RateLimiter] failed to extract key: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		result, err := engine.CheckInfo(c.Request.Context(), key, rate, cfg.CheckOptions...)
		if err != nil {
			cfg.Logger.Errorf("[RateLimiter] engine failed for key %q: %v", key, err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetEpoch, 10))

		if !result.Allowed {
			cfg.Logger.Debugf("[RateLimiter] denied key %q remaining=%d limit=%d", key, result.Remaining, result.Limit)
			cfg.ErrorHandler(c, result)
			c.Abort()
			return
		}

		cfg.Logger.Debugf("[RateLimiter] allowed key %q remaining=%d limit=%d", key, result.Remaining, result.Limit)
		c.Next()
	}
}
