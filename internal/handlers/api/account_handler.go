package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
)

type AccountHandler struct {
	accountService AccountService
}

func NewAccountHandler(accountService AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

func (h *AccountHandler) PostChangePassword(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	var req changePasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return fiber.ErrBadRequest
	}
	err := h.accountService.ChangePassword(ctx.Context(), session.PrincipalID, session.Key, req.OldPassword, req.NewPassword, ctx.IP())
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// PostForgotPassword always answers 204. The response does not reveal whether
// the identity resolves to an account.
func (h *AccountHandler) PostForgotPassword(ctx *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Identity == "" {
		return fiber.ErrBadRequest
	}
	if err := h.accountService.RequestPasswordReset(ctx.Context(), req.Identity, ctx.IP()); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *AccountHandler) PostResetPassword(ctx *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Token == "" || req.NewPassword == "" {
		return fiber.ErrBadRequest
	}
	if err := h.accountService.ResetPassword(ctx.Context(), req.Token, req.NewPassword, ctx.IP()); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
