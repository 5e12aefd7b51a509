package middlewares

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/auth"
	"github.com/nmkhang/authcore/internal/credentials"
	"github.com/nmkhang/authcore/internal/handlers/api"
	"github.com/nmkhang/authcore/internal/lockout"
	"github.com/nmkhang/authcore/internal/mfa"
	"github.com/nmkhang/authcore/internal/ratelimit"
	"github.com/nmkhang/authcore/internal/sessions"
)

// ErrorHandler translates domain errors into the JSON error envelope.
// Handlers return domain errors as-is; this is the single place where they
// become HTTP statuses.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var (
		lockedErr    *lockout.AccountLockedError
		rateErr      *ratelimit.RateLimitExceededError
		policyErr    *credentials.PolicyViolationError
		transientErr *auth.TransientError
		fiberErr     *fiber.Error
	)
	switch {
	case errors.Is(err, credentials.ErrInvalidCredentials):
		return sendError(ctx, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid identity or password.")
	case errors.Is(err, mfa.ErrCodeInvalid):
		return sendError(ctx, fiber.StatusUnauthorized, "MFA_CODE_INVALID", "Invalid verification code.")
	case errors.Is(err, mfa.ErrNotEnabled):
		return sendError(ctx, fiber.StatusConflict, "MFA_NOT_ENABLED", "Two-factor authentication is not enabled.")
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return sendError(ctx, fiber.StatusConflict, "MFA_ALREADY_ENABLED", "Two-factor authentication is already enabled.")
	case errors.Is(err, mfa.ErrEnrollmentNotFound):
		return sendError(ctx, fiber.StatusNotFound, "ENROLLMENT_NOT_FOUND", "Enrollment not found or expired.")
	case errors.Is(err, credentials.ErrReusedCredential):
		return sendError(ctx, fiber.StatusUnprocessableEntity, "CREDENTIAL_REUSED", "The new password was used recently.")
	case errors.Is(err, credentials.ErrInvalidResetToken):
		return sendError(ctx, fiber.StatusUnauthorized, "INVALID_RESET_TOKEN", "Invalid or expired reset token.")
	case errors.Is(err, sessions.ErrSessionExpired):
		return sendError(ctx, fiber.StatusUnauthorized, "SESSION_EXPIRED", "Session expired.")
	case errors.Is(err, sessions.ErrSessionNotFound):
		return sendError(ctx, fiber.StatusNotFound, "SESSION_NOT_FOUND", "Session not found.")
	case errors.Is(err, auth.ErrIPNotAuthorized):
		return sendError(ctx, fiber.StatusForbidden, "IP_NOT_AUTHORIZED", "Requests from this address are not accepted.")
	case errors.As(err, &policyErr):
		return sendError(ctx, fiber.StatusUnprocessableEntity, "POLICY_VIOLATION", policyErr.Reason)
	case errors.As(err, &lockedErr):
		return sendRetryError(ctx, fiber.StatusLocked, "ACCOUNT_LOCKED",
			"Too many failed attempts. Try again later.", lockedErr.RetryAfter(time.Now()))
	case errors.As(err, &rateErr):
		return sendRetryError(ctx, fiber.StatusTooManyRequests, "RATE_LIMITED",
			"Too many requests. Slow down.", rateErr.RetryAfter)
	case errors.As(err, &transientErr):
		slog.Error("Transient failure", "path", ctx.Path(), "error", err)
		return sendError(ctx, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Temporary failure, retry shortly.")
	case errors.As(err, &fiberErr):
		return sendError(ctx, fiberErr.Code, "REQUEST_FAILED", fiberErr.Message)
	default:
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
		return sendError(ctx, fiber.StatusInternalServerError, "INTERNAL", "Internal server error.")
	}
}

func sendError(ctx *fiber.Ctx, code int, status string, message string) error {
	return ctx.Status(code).JSON(api.NewErrorResponse(code, status, message))
}

func sendRetryError(ctx *fiber.Ctx, code int, status string, message string, retryAfter time.Duration) error {
	seconds := int64(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	ctx.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
	resp := api.NewErrorResponse(code, status, message)
	resp.Error.RetryAfter = seconds
	return ctx.Status(code).JSON(resp)
}
