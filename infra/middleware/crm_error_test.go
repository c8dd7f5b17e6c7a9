package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"crm_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID(), Recover())

	app.Get("/stale", func(c *fiber.Ctx) error {
		return fmt.Errorf("accept: %w", apperr.SuggestionStale(4))
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("socket closed")
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("nil map")
	})
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/stale", 409, apperr.CodeSuggestionStale},
		{"/missing", 404, apperr.CodeNotFound},
		{"/boom", 500, apperr.CodeInternalError},
		{"/panic", 500, apperr.CodeInternalError},
	}

	app := newTestApp()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeError(t, resp.Body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
			assert.Equal(t, body.RequestID, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestErrorHandler_KeepsDetails(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/stale", nil))
	require.NoError(t, err)

	body := decodeError(t, resp.Body)
	assert.EqualValues(t, 4, body.Error.Details["contact_id"])
}

func TestRequestID_UsesIncomingHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set("X-Request-ID", "req-123")

	resp, err := newTestApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "req-123", decodeError(t, resp.Body).RequestID)
}
