// Package response defines the standardized JSON envelope returned by the
// proxy's control surface and status endpoints.
package response

import "github.com/gofiber/fiber/v2"

// Envelope is the standardized JSON structure for every control/status
// response, success or error.
type Envelope struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Data        any    `json:"data,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
	Details     any    `json:"details,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// builder ties response construction to the current request so every reply
// carries its request id without the caller threading it through.
type builder struct {
	ctx *fiber.Ctx
}

// New captures the fiber context once, avoiding redundant passing in
// subsequent calls.
func New(c *fiber.Ctx) *builder {
	return &builder{ctx: c}
}

func (b *builder) requestID() string {
	id, _ := b.ctx.Locals("request_id").(string)
	return id
}

// OK sends a successful response (HTTP 200).
func (b *builder) OK(data any) error {
	return b.ctx.Status(fiber.StatusOK).JSON(Envelope{
		Success:   true,
		Data:      data,
		RequestID: b.requestID(),
	})
}

// Accepted sends a response for a queued or asynchronous operation (HTTP 202).
func (b *builder) Accepted(message string, data any) error {
	return b.ctx.Status(fiber.StatusAccepted).JSON(Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: b.requestID(),
	})
}

// NoContent sends a successful response with no body (HTTP 204).
func (b *builder) NoContent() error {
	return b.ctx.SendStatus(fiber.StatusNoContent)
}

// Error sends a structured error response derived from an *apperror.AppError
// (see errorcode/status mapping in the apperror package).
func (b *builder) Error(status int, code, message string, retryable bool, details any) error {
	return b.ctx.Status(status).JSON(Envelope{
		Success:     false,
		Message:     message,
		ErrorCode:   code,
		IsRetryable: retryable,
		Details:     details,
		RequestID:   b.requestID(),
	})
}
