package middleware

import (
	"strconv"
	"time"

	"github.com/NagallaThanvi/unilink/utils/metrics"
	"github.com/gofiber/fiber/v2"
)

// Metrics records request counts and latency per matched route
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		// Route().Path is the registered pattern, e.g. /api/jobs/:id
		route := c.Route().Path
		metrics.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}
