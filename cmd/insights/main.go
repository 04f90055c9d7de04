package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/shop-insights/internal/app"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/httpserver"
	"github.com/radiusdt/shop-insights/internal/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to standard log
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting shop-insights",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("commerce", cfg.Commerce.BaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	go a.RunJanitor(ctx, time.Minute)

	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, a.Metrics)
	go limiter.Run(ctx, time.Minute)

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Reports:     a.Service,
		Config:      cfg,
		Logger:      logger,
		Metrics:     a.Metrics,
		Gatherer:    a.Registry,
		Checks:      a.Checks,
		RateLimiter: limiter,
	})

	// Report builds page through whole collections, so writes get a long budget.
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
