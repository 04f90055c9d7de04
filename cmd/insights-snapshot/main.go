// Command insights-snapshot computes every report once and writes the result
// as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/shop-insights/internal/app"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/middleware"
	"github.com/radiusdt/shop-insights/internal/models"
	"go.uber.org/zap"
)

func main() {
	from := flag.String("from", "", "window start, YYYY-MM-DD")
	to := flag.String("to", "", "window end, YYYY-MM-DD (inclusive)")
	pageURL := flag.String("page-url", "", "limit event counts to one storefront page")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	if err := run(*from, *to, *pageURL, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "insights-snapshot: %v\n", err)
		os.Exit(1)
	}
}

func run(from, to, pageURL string, timeout time.Duration) error {
	w, err := parseWindow(from, to, pageURL)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so stdout carries only the report.
	logger, err := middleware.NewLogger(cfg.Log.Level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Service.Snapshot(ctx, w)
	if err != nil {
		logger.Error("snapshot failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func parseWindow(from, to, pageURL string) (models.Window, error) {
	w := models.Window{PageURL: pageURL}
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return w, fmt.Errorf("invalid -from: %w", err)
		}
		w.From = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return w, fmt.Errorf("invalid -to: %w", err)
		}
		w.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return w, w.Validate()
}
