package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jassus213/rlcore"
	zapadapter "github.com/jassus213/rlcore/adapters/zap"
	ginMiddleware "github.com/jassus213/rlcore/middleware/gin"
	"github.com/jassus213/rlcore/store"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := zap.Config{
		Level:         zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:   true,
		Encoding:      "console",
		OutputPaths:   []string{"stdout"},
		EncoderConfig: zap.NewDevelopmentEncoderConfig(),
	}
	logger, _ := cfg.Build()
	defer logger.Sync()

	zapLogger := zapadapter.New(logger)

	limiterStore := store.NewMemory(ctx, 10*time.Minute)
	engine := rlcore.NewEngine(limiterStore,
		rlcore.WithDefaultAlgorithm(rlcore.TokenBucket),
		rlcore.WithLogger(zapLogger),
	)

	router := gin.Default()
	router.Use(ginMiddleware.RateLimiter(engine, "5/second", ginMiddleware.WithLogger(zapLogger)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	logger.Info("Starting server on http://localhost:8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
