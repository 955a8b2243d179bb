package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestIDPattern = regexp.MustCompile(`^req_[a-z0-9]{12}$`)

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.Regexp(t, requestIDPattern, a)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/v1/health", func(c fiber.Ctx) error {
		return c.SendString(GetRequestID(c))
	})

	t.Run("Should generate an id when none is sent", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		id := resp.Header.Get(RequestIDHeader)
		assert.Regexp(t, requestIDPattern, id)

		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		assert.Equal(t, id, body.String())
	})

	t.Run("Should echo the client id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/health", nil)
		req.Header.Set(RequestIDHeader, "req_myclient1234")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "req_myclient1234", resp.Header.Get(RequestIDHeader))
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	app := fiber.New()
	app.Use(RequestID())
	app.Use(RequestLogger(logger, func(error) int { return fiber.StatusNotFound }))
	app.Get("/ok", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/missing", func(c fiber.Ctx) error { return errors.New("document not found") })

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, "req_aaaaaaaaaaaa")
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "path=/ok")
	assert.Contains(t, out, "status=204")
	assert.Contains(t, out, "request_id=req_aaaaaaaaaaaa")

	buf.Reset()
	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()

	out = buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, `error="document not found"`)
}
