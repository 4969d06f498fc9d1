package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/quizdesk_service/internal/token"
)

// AccessVerifier checks a bearer access token and returns its claims.
type AccessVerifier interface {
	VerifyAccess(raw string) (token.Claims, error)
}

const (
	UserIDKey = "userID"
	EmailKey  = "userEmail"
)

// Auth requires a valid `Authorization: Bearer <token>` header and stores
// the caller's identity in locals.
func Auth(verifier AccessVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return Fail(c, fiber.StatusUnauthorized, "Missing or invalid Authorization header", nil)
		}
		claims, err := verifier.VerifyAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return Fail(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}
		c.Locals(UserIDKey, claims.UserID)
		c.Locals(EmailKey, claims.Email)
		return c.Next()
	}
}
