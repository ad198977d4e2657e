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
	stdlogadapter "github.com/jassus213/rlcore/adapters/log"
	ginMiddleware "github.com/jassus213/rlcore/middleware/gin"
	"github.com/jassus213/rlcore/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdLogger := stdlogadapter.New(log.Default())

	limiterStore := store.NewMemory(ctx, 10*time.Minute)
	engine := rlcore.NewEngine(limiterStore,
		rlcore.WithDefaultAlgorithm(rlcore.TokenBucket),
		rlcore.WithLogger(stdLogger),
	)

	router := gin.Default()
	router.Use(ginMiddleware.RateLimiter(engine, "5/second", ginMiddleware.WithLogger(stdLogger)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	log.Println("Starting server on http://localhost:8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
