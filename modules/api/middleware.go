package api

import (
	"strings"

	"github.com/example/task-manager/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// OwnerContextKey holds the authenticated owner ID in fiber.Ctx locals.
	OwnerContextKey = "owner_id"
	// IdentityContextKey holds the *user.Identity in fiber.Ctx locals.
	IdentityContextKey = "identity"
)

// AuthMiddleware resolves the bearer token into an owner ID.
func AuthMiddleware(authPort auth.AuthPort) fiber.Handler {
	return authenticate(authPort, false)
}

// WebSocketAuthMiddleware also accepts the token as a "token" query
// parameter; browsers cannot set headers on the upgrade request.
func WebSocketAuthMiddleware(authPort auth.AuthPort) fiber.Handler {
	return authenticate(authPort, true)
}

func authenticate(authPort auth.AuthPort, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c, allowQuery)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Authorization header is required. Use: Bearer <token>",
			})
		}

		identity, err := authPort.ValidateToken(c.UserContext(), token)
		if err != nil {
			return authError(c, err)
		}

		c.Locals(OwnerContextKey, identity.OwnerID)
		c.Locals(IdentityContextKey, identity)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx, allowQuery bool) (string, bool) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		return token, found && token != ""
	}
	if token := c.Query("token"); allowQuery && token != "" {
		return token, true
	}
	return "", false
}

func ownerID(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerContextKey).(string)
	return owner
}
