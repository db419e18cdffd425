// middleware/request_context.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	RequestIDKey = "request_id"
	DeviceIDKey  = "device_id"
)

// RequestContextMiddleware attaches the request id and the caller's device id
// to the fiber context. A missing X-Request-ID is generated and echoed back.
func RequestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, requestID)

		c.Locals(RequestIDKey, requestID)
		c.Locals(DeviceIDKey, strings.TrimSpace(c.Get("X-Device-ID")))
		return c.Next()
	}
}

// RequestID returns the id set by RequestContextMiddleware.
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDKey).(string)
	return id
}
