package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/logging"
)

// generateAPIKey generates a valid API key of specified length
func generateAPIKey(length int) string {
	key := make([]byte, length)
	for i := range key {
		key[i] = 'a' + byte(i%26)
	}
	return string(key)
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"exactly 32 chars", generateAPIKey(32), true},
		{"longer than 32 chars", generateAPIKey(64), true},
		{"31 chars", generateAPIKey(31), false},
		{"empty", "", false},
		{"32 spaces", "                                ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateAPIKey(tt.key); got != tt.expected {
				t.Errorf("ValidateAPIKey() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("abc"); got != "****" {
		t.Errorf("maskAPIKey(short) = %q", got)
	}
	if got := maskAPIKey("abcdefgh"); got != "abcd****" {
		t.Errorf("maskAPIKey(long) = %q", got)
	}
}

func newAuthApp(keys []string, enabled bool) *fiber.App {
	app := fiber.New()
	app.Use(APIKeyAuth(logging.NewNop(), keys, enabled))
	app.Get("/v1/readings", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	app := newAuthApp(nil, false)
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/readings", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	validKey := generateAPIKey(40)
	app := newAuthApp([]string{validKey, "too-short", ""}, true)

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"X-API-Key", "X-API-Key", validKey, fiber.StatusOK},
		{"Bearer token", "Authorization", "Bearer " + validKey, fiber.StatusOK},
		{"bare Authorization", "Authorization", validKey, fiber.StatusOK},
		{"missing key", "", "", fiber.StatusUnauthorized},
		{"wrong key", "X-API-Key", generateAPIKey(41), fiber.StatusUnauthorized},
		{"weak configured key", "X-API-Key", "too-short", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/readings", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
