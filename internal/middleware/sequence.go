package middleware

import (
	"github.com/chronicle-audit/backend/internal/audit"
	"github.com/gofiber/fiber/v2"
)

// HeaderSequence opts a single request into squash tracking.
const HeaderSequence = "X-Audit-Sequence"

// SequenceMiddleware scopes one audit sequence to the request when the client
// asks for it. Without the header, records persist independently.
func SequenceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(HeaderSequence) != "on" {
			return c.Next()
		}

		ctx, end := audit.BeginSequence(c.UserContext())
		defer end()
		c.SetUserContext(ctx)

		return c.Next()
	}
}
