package app

import (
	"context"
	"testing"
	"time"

	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/insights"
	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func baseConfig() *config.Config {
	return &config.Config{
		Commerce: config.CommerceConfig{
			BaseURL:  "http://127.0.0.1:1",
			PageSize: 50,
		},
		Cache:   config.CacheConfig{TTL: time.Minute, Prefix: "test:"},
		Metrics: config.MetricsConfig{Namespace: "test"},
		Reports: config.ReportsConfig{DefaultGroup: "Retail"},
	}
}

func TestNew_MinimalConfig(t *testing.T) {
	a, err := New(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Service)
	assert.NotNil(t, a.memCache, "falls back to the in-memory cache")
	assert.Empty(t, a.Checks)

	_, err = a.Service.Conversion(context.Background(), models.Window{})
	assert.ErrorIs(t, err, insights.ErrNoProductCounter)
}

func TestNew_RejectsBadAnalyticsProvenance(t *testing.T) {
	cfg := baseConfig()
	cfg.Analytics = config.AnalyticsConfig{Enabled: true, BaseURL: "http://127.0.0.1:1", Provenance: "commerce_backend"}

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), baseConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
