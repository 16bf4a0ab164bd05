package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/pkg/utils"
)

const APIKeyHeader = "X-API-Key"

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts a bearer JWT signed with the secret key or the
// static API key header.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		apiKey := c.Get(APIKeyHeader)

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token or api key",
			})
		}

		if apiKey != "" {
			if m.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.cfg.APIKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid api key",
				})
			}
			c.Locals("subject", "api_key")
			return c.Next()
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			slog.Warn("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("subject", claims.Subject)
		return c.Next()
	}
}
