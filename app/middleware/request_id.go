package middleware

import (
	"fulfillment-service/pkg/ctxutil"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
)

const (
	RequestIDHeaderKey = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestIDMiddleware propagates the caller's request id, or issues a time-ordered one, into the
// user context so usecase logs and outbox writes can be correlated.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeaderKey)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			id, err := uuid.NewV7()
			if err != nil {
				slog.WarnContext(c.UserContext(), "[RequestIDMiddleware] NewV7", "error", err)
			}
			reqID = id.String()
		}

		c.Set(RequestIDHeaderKey, reqID)
		c.SetUserContext(ctxutil.WithRequestID(c.UserContext(), reqID))
		return c.Next()
	}
}
