package middleware

import (
	"fulfillment-service/app/domain"
	"fulfillment-service/app/handler/api/response"
	"fulfillment-service/config"
	"fulfillment-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
)

type AuthInternalHeader string

const (
	AuthInternalHeaderKey AuthInternalHeader = "X-Internal-Auth"
	ActorHeaderKey        AuthInternalHeader = "X-Actor"
)

// AuthInternal guards the internal routes with the shared header secret and
// records the calling actor for the inventory audit log.
func AuthInternal(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(string(AuthInternalHeaderKey))
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}
		if authHeader != cfg.InternalAuthHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}

		if actor := c.Get(string(ActorHeaderKey)); actor != "" {
			c.SetUserContext(ctxutil.WithActor(c.UserContext(), actor))
		}

		return c.Next()
	}
}
