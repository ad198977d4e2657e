package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jassus213/rlcore"
	zerologadapter "github.com/jassus213/rlcore/adapters/zerolog"
	ginMiddleware "github.com/jassus213/rlcore/middleware/gin"
	"github.com/jassus213/rlcore/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zeroLogger := zerologadapter.New(&log.Logger)

	limiterStore := store.NewMemory(ctx, 10*time.Minute)
	engine := rlcore.NewEngine(limiterStore,
		rlcore.WithDefaultAlgorithm(rlcore.TokenBucket),
		rlcore.WithLogger(zeroLogger),
	)

	router := gin.Default()
	router.Use(ginMiddleware.RateLimiter(engine, "5/second", ginMiddleware.WithLogger(zeroLogger)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	log.Info().Msg("Starting server on http://localhost:8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatal().Err(err).Msg("Failed to run server")
	}
}
