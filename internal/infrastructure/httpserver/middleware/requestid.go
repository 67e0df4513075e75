package middleware

import (
	"frlproxy/core/internal/infrastructure/ctxkey"
	"frlproxy/core/internal/pkg/uid"

	"github.com/gofiber/fiber/v2"
)

// RequestID assigns a correlation id to every inbound request, honoring one
// supplied by the caller and minting a fresh uuidv7 otherwise. The id is
// echoed back in the response and propagated through context for logging
// and journaling.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID = uid.New()
		}
		c.Set(fiber.HeaderXRequestID, reqID)
		c.Locals("request_id", reqID)

		ctx := ctxkey.SetRequestID(c.UserContext(), reqID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
