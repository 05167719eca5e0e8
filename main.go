package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gobayes/internal/config"
	"gobayes/internal/container"

	"github.com/gin-gonic/gin"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)
	logger := appConfig.Logger().With("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}()

	if !appConfig.Database.Enabled() {
		logger.Warn("DATABASE_URL is not set; fits are kept in memory and lost on exit")
	}
	logger.Info("sampling with %s (%d chains, %d iterations by default)",
		c.Engine.Name(), appConfig.Sampler.Defaults.Chains, appConfig.Sampler.Defaults.Iterations)

	if err := c.Server().Run(ctx, ":"+appConfig.Server.Port); err != nil {
		logger.Error("server failed: %v", err)
		os.Exit(1)
	}
}
