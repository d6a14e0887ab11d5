package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type healthBody struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

func probe(t *testing.T, h *HealthHandler) (int, healthBody) {
	t.Helper()
	app := fiber.New()
	app.Get("/health", h.Health)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestHealthAllUp(t *testing.T) {
	status, body := probe(t, NewHealthHandler(
		HealthCheck{Name: "database", Check: ok},
		HealthCheck{Name: "redis", Optional: true, Check: ok},
	))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Components["redis"].Status)
}

func TestHealthOptionalDown(t *testing.T) {
	status, body := probe(t, NewHealthHandler(
		HealthCheck{Name: "database", Check: ok},
		HealthCheck{Name: "search", Optional: true, Check: failing},
	))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Components["search"].Status)
	assert.Equal(t, "connection refused", body.Components["search"].Error)
}

func TestHealthRequiredDown(t *testing.T) {
	status, body := probe(t, NewHealthHandler(
		HealthCheck{Name: "database", Check: failing},
		HealthCheck{Name: "redis", Optional: true, Check: failing},
	))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "down", body.Status)
}

func TestPing(t *testing.T) {
	app := fiber.New()
	app.Get("/ping", NewHealthHandler().Ping)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
