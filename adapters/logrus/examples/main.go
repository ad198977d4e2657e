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
	logrusadapter "github.com/jassus213/rlcore/adapters/logrus"
	ginMiddleware "github.com/jassus213/rlcore/middleware/gin"
	"github.com/jassus213/rlcore/store"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logrusLogger := logrusadapter.New(logger)

	limiterStore := store.NewMemory(ctx, 10*time.Minute)
	engine := rlcore.NewEngine(limiterStore,
		rlcore.WithDefaultAlgorithm(rlcore.TokenBucket),
		rlcore.WithLogger(logrusLogger),
	)

	router := gin.Default()
	router.Use(ginMiddleware.RateLimiter(engine, "5/second", ginMiddleware.WithLogger(logrusLogger)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	logger.Info("Starting server on http://localhost:8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
