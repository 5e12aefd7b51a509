package sessionauth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/sessions"
	"github.com/nmkhang/authcore/model"
)

// SessionToucher validates a session key and pushes its sliding expiry.
type SessionToucher interface {
	Touch(ctx context.Context, key string) (*model.Session, error)
}

const localsKey = "session"

// New returns a middleware that authenticates requests by the bearer session
// key. Every authenticated request counts as activity and extends the
// session's sliding expiry.
func New(registry SessionToucher) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)
		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || key == "" {
			return fiber.ErrUnauthorized
		}
		session, err := registry.Touch(ctx.Context(), key)
		if err != nil {
			if err == sessions.ErrSessionExpired || err == sessions.ErrSessionNotFound {
				return fiber.ErrUnauthorized
			}
			return err
		}
		ctx.Locals(localsKey, session)
		return ctx.Next()
	}
}

// Get returns the authenticated session, or nil outside the middleware.
func Get(ctx *fiber.Ctx) *model.Session {
	session, _ := ctx.Locals(localsKey).(*model.Session)
	return session
}
