package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 3 * time.Second

// HealthCheck probes one backing service. Optional checks degrade the status
// without failing it.
type HealthCheck struct {
	Name     string
	Optional bool
	Check    func(ctx context.Context) error
}

// ComponentHealth is the result of a single probe
type ComponentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

type HealthHandler struct {
	checks []HealthCheck
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Ping handles GET /ping
func (h *HealthHandler) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Health handles GET /health. Responds 503 when a required check fails.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	components := make(map[string]ComponentHealth, len(h.checks))

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		start := time.Now()
		err := check.Check(ctx)
		cancel()

		result := ComponentHealth{Status: "ok", Latency: time.Since(start).Round(time.Millisecond).String()}
		if err != nil {
			result.Status = "down"
			result.Error = err.Error()
			if check.Optional {
				if status == "ok" {
					status = "degraded"
				}
			} else {
				status = "down"
				code = fiber.StatusServiceUnavailable
			}
		}
		components[check.Name] = result
	}

	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"components": components,
		"time":       time.Now().UTC(),
	})
}
