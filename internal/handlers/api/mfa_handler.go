package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
)

type MFAHandler struct {
	mfaService MFAService
}

func NewMFAHandler(mfaService MFAService) *MFAHandler {
	return &MFAHandler{
		mfaService: mfaService,
	}
}

// PostEnroll starts a TOTP enrollment. The secret and the backup codes are
// shown exactly once here; confirmation is a separate call with a live code.
func (h *MFAHandler) PostEnroll(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	enrollment, err := h.mfaService.BeginMFAEnrollment(ctx.Context(), session.PrincipalID)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(enrollmentResponse{
		EnrollmentID:    enrollment.ID,
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
	}))
}

func (h *MFAHandler) PostConfirm(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	var req confirmEnrollmentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.EnrollmentID == "" || req.Code == "" {
		return fiber.ErrBadRequest
	}
	err := h.mfaService.ConfirmMFAEnrollment(ctx.Context(), session.PrincipalID, req.EnrollmentID, req.Code, ctx.IP())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusOK).JSON(NewDataResponse(fiber.Map{"enabled": true}))
}

func (h *MFAHandler) PostDisable(ctx *fiber.Ctx) error {
	session := sessionauth.Get(ctx)
	if session == nil {
		return fiber.ErrUnauthorized
	}
	var req disableMFARequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Password == "" {
		return fiber.ErrBadRequest
	}
	err := h.mfaService.DisableMFA(ctx.Context(), session.PrincipalID, req.Password, ctx.IP())
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
