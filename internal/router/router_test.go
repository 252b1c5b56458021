package router

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/cache"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/fanout"
	"github.com/soltixdb/sensorlog/internal/handlers"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

func newTestApp(t *testing.T, auth config.AuthConfig) *fiber.App {
	t.Helper()
	logger := logging.NewNop()
	cfg := config.DefaultConfig()
	cfg.Store.LogDir = t.TempDir()
	cfg.Auth = auth

	store, err := logstore.New(logstore.ConfigFrom(cfg.Store), logstore.WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Start(); err != nil {
		t.Fatalf("Failed to start store: %v", err)
	}
	t.Cleanup(func() { _ = store.Stop() })

	hub := fanout.NewHub(logger)
	latest := cache.NewLatest()
	_ = hub.Register("store", store)
	_ = hub.Register("latest", latest)

	return New(logger, handlers.Deps{Store: store, Sink: hub, Latest: latest, Hub: hub}, *cfg)
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t, config.AuthConfig{})

	tests := []struct {
		method, path string
		status       int
	}{
		{"GET", "/health", fiber.StatusOK},
		{"GET", "/v1/readings", fiber.StatusOK},
		{"GET", "/v1/sensors/latest", fiber.StatusOK},
		{"GET", "/v1/sensors/stats", fiber.StatusNotFound},
		{"GET", "/admin/status", fiber.StatusOK},
		{"GET", "/admin/archives", fiber.StatusOK},
		{"POST", "/admin/flush", fiber.StatusOK},
		{"GET", "/v2/readings", fiber.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil), int((5 * time.Second).Milliseconds()))
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.status, resp.StatusCode)
		}
		if resp.Header.Get(fiber.HeaderXRequestID) == "" && tt.path != "/health" {
			t.Errorf("%s %s: missing request id", tt.method, tt.path)
		}
	}
}

func TestRoutesRequireAPIKey(t *testing.T) {
	key := strings.Repeat("k", 32)
	app := newTestApp(t, config.AuthConfig{Enabled: true, APIKeys: []string{key}})

	resp, _ := app.Test(httptest.NewRequest("GET", "/health", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("health should not require auth, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/admin/status", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest("POST", "/v1/readings", strings.NewReader(`{"sensor_id":"T001","value":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", key)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Errorf("Expected 202 with key, got %d", resp.StatusCode)
	}
}
