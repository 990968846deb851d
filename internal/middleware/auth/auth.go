// Package auth resolves the calling user. Session issuance and identity
// verification happen upstream; this service trusts the forwarded identity
// header from the gateway.
package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	HeaderUserID = "X-User-ID"

	// LocalsUserID is the fiber locals key carrying the resolved user. The
	// websocket handler reads it off the upgraded connection.
	LocalsUserID = "auth_user_id"
)

func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(HeaderUserID)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalsUserID, userID)
		return c.Next()
	}
}

// UserID returns the authenticated user for the request, or "" when the
// middleware did not run.
func UserID(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalsUserID).(string); ok {
		return id
	}
	return ""
}
