// middleware/auth.go
package middleware

import (
	"context"
	"log"
	"strings"

	"stake-escrow/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
	LocalDeviceID  = "device_id"
)

// UserContextMiddleware extracts the user identity and roles set by the
// Gateway. A missing X-User-ID leaves the request anonymous.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := utils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))
		if userID == "" {
			return c.Next()
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, utils.CopyString(r))
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)
		log.Printf("👤 [USER_CTX] UserID=%s, Roles=%v | Path: %s", userID, roles, c.Path())
		return c.Next()
	}
}

// TokenValidator checks a user access token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// TokenAuthMiddleware authenticates requests that carry no gateway user
// context with an access token, read from X-Access-Token / X-Device-ID or
// from the token / device_id query parameters (EventSource clients cannot
// set headers).
func TokenAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CallerID(c) != "" {
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Get("X-Access-Token"))
		if accessToken == "" {
			accessToken = strings.TrimSpace(c.Query("token"))
		}
		deviceID := strings.TrimSpace(c.Get("X-Device-ID"))
		if deviceID == "" {
			deviceID = strings.TrimSpace(c.Query("device_id"))
		}
		if accessToken == "" {
			return c.Next()
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Printf("[TOKEN_AUTH] ❌ Validation failed for device %q on %s: %v", deviceID, c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalUserRoles, resp.Roles)
		c.Locals(LocalDeviceID, resp.DeviceID)
		log.Printf("[TOKEN_AUTH] ✅ Authenticated user %s (device %s)", resp.UserID, resp.DeviceID)
		return c.Next()
	}
}

// RequireCaller rejects requests without an authenticated caller.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CallerID(c) == "" {
			log.Printf("❌ [USER_CTX] caller identity required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing caller identity: request must carry X-User-ID or a valid access token",
			})
		}
		return c.Next()
	}
}

func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
