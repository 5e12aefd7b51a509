package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
)

type SessionHandler struct {
	sessionService SessionService
}

func NewSessionHandler(sessionService SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) GetSessions(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	summaries, err := h.sessionService.ListSessions(ctx.Context(), session.PrincipalID, session.Key)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(summaries))
}

func (h *SessionHandler) DeleteSession(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	sessionID, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.ErrBadRequest
	}
	err = h.sessionService.RevokeSession(ctx.Context(), session.PrincipalID, uint(sessionID), ctx.IP())
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// DeleteSessions revokes every other session of the principal, keeping the
// one making the call.
func (h *SessionHandler) DeleteSessions(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	revoked, err := h.sessionService.RevokeOtherSessions(ctx.Context(), session.PrincipalID, session.Key, ctx.IP())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(fiber.Map{"revoked": revoked}))
}
