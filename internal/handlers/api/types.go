package api

import (
	"context"

	"github.com/nmkhang/authcore/internal/auth"
	"github.com/nmkhang/authcore/internal/mfa"
	"github.com/nmkhang/authcore/internal/sessions"
)

type LoginService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	Logout(ctx context.Context, key string, ip string, userAgent string) error
}

type AccountService interface {
	ChangePassword(ctx context.Context, principalID uint, currentKey, oldPassword, newPassword, ip string) error
	RequestPasswordReset(ctx context.Context, identity string, ip string) error
	ResetPassword(ctx context.Context, token, newPassword, ip string) error
}

type MFAService interface {
	BeginMFAEnrollment(ctx context.Context, principalID uint) (*mfa.Enrollment, error)
	ConfirmMFAEnrollment(ctx context.Context, principalID uint, enrollmentID, code, ip string) error
	DisableMFA(ctx context.Context, principalID uint, password, ip string) error
}

type SessionService interface {
	ListSessions(ctx context.Context, principalID uint, currentKey string) ([]sessions.Summary, error)
	RevokeSession(ctx context.Context, principalID uint, sessionID uint, ip string) error
	RevokeOtherSessions(ctx context.Context, principalID uint, currentKey string, ip string) (int64, error)
}
