package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/models"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{"bad request", fiber.NewError(fiber.StatusBadRequest, "start must be set"), 400, "INVALID_REQUEST", "start must be set"},
		{"not found", fiber.ErrNotFound, 404, "NOT_FOUND", "Not Found"},
		{"teapot", fiber.NewError(fiber.StatusTeapot, "I'm a teapot"), 418, "ERROR", "I'm a teapot"},
		{"store stopped", fmt.Errorf("append: %w", logstore.ErrNotStarted), 503, "STORE_STOPPED", ""},
		{"archive", &logstore.Error{Kind: logstore.ErrArchive, Op: "archive", Path: "x.csv"}, 500, "ARCHIVE_FAILED", ""},
		{"invalid reading", &logstore.Error{Kind: logstore.ErrInvalidEntry, Op: "validate"}, 400, "INVALID_READING", ""},
		{"io", &logstore.Error{Kind: logstore.ErrIO, Op: "write"}, 500, "IO_ERROR", ""},
		{"generic", errors.New("boom"), 500, "INTERNAL_ERROR", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
			app.Get("/test", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}

			var body models.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Error.Code != tt.expectedCode {
				t.Errorf("Expected code %s, got %s", tt.expectedCode, body.Error.Code)
			}
			want := tt.expectedMsg
			if want == "" {
				want = tt.err.Error()
			}
			if body.Error.Message != want {
				t.Errorf("Expected message %q, got %q", want, body.Error.Message)
			}
		})
	}
}
