package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/auth"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
)

type AuthHandler struct {
	loginService LoginService
}

func NewAuthHandler(loginService LoginService) *AuthHandler {
	return &AuthHandler{
		loginService: loginService,
	}
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Identity == "" || req.Password == "" {
		return fiber.ErrBadRequest
	}

	result, err := h.loginService.Login(ctx.Context(), auth.LoginRequest{
		Identity:   req.Identity,
		Password:   req.Password,
		MFACode:    req.MFACode,
		IP:         ctx.IP(),
		UserAgent:  ctx.Get(fiber.HeaderUserAgent),
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return err
	}

	if result.Status == auth.LoginStatusMFARequired {
		return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(loginResponse{
			Status:           result.Status,
			AvailableMethods: result.AvailableMethods,
		}))
	}

	return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(loginResponse{
		Status:             result.Status,
		SessionKey:         result.Session.Key,
		ExpiresAt:          &result.Session.ExpiresAt,
		MustChangePassword: result.MustChangePassword,
		User: &userInfoResponse{
			UserID:   strconv.FormatUint(uint64(result.Principal.ID), 10),
			Username: result.Principal.Username,
			FullName: result.Principal.FullName,
			Email:    result.Principal.Email,
		},
	}))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	err := h.loginService.Logout(ctx.Context(), session.Key, ctx.IP(), ctx.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
