package auth

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/nmkhang/authcore/internal/audit"
	"github.com/nmkhang/authcore/internal/credentials"
	"github.com/nmkhang/authcore/internal/lockout"
	"github.com/nmkhang/authcore/internal/mail"
	"github.com/nmkhang/authcore/internal/mfa"
	"github.com/nmkhang/authcore/internal/principals"
	"github.com/nmkhang/authcore/internal/ratelimit"
	"github.com/nmkhang/authcore/internal/sessions"
	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
)

const (
	LoginStatusSuccess     = "SUCCESS"
	LoginStatusMFARequired = "MFA_REQUIRED"
)

const actionLogin = "login"

type LoginRequest struct {
	Identity   string
	Password   string
	MFACode    string
	IP         string
	UserAgent  string
	RememberMe bool
}

// LoginResult is returned on the two non-error outcomes of a login attempt.
// MFA_REQUIRED is not a failure: the credential was correct and no counter
// moves, the caller just has to come back with a second factor.
type LoginResult struct {
	Status             string
	Principal          *model.Principal
	Session            *model.Session
	AvailableMethods   []string
	MustChangePassword bool
}

// Coordinator drives the login state machine and the self-service account
// operations, delegating each concern to its owning service. It holds no
// state of its own beyond configuration.
type Coordinator struct {
	principals  principals.Repository
	credentials *credentials.Store
	mfa         *mfa.Service
	lockout     *lockout.Tracker
	limiter     *ratelimit.Limiter
	sessions    *sessions.Registry
	audit       *audit.Log
	notifier    mail.Notifier
	siteName    string
	allowedNets []*net.IPNet
	nowFunc     func() time.Time
}

func NewCoordinator(
	repo principals.Repository,
	creds *credentials.Store,
	mfaSvc *mfa.Service,
	tracker *lockout.Tracker,
	limiter *ratelimit.Limiter,
	registry *sessions.Registry,
	auditLog *audit.Log,
	notifier mail.Notifier,
	siteName string,
	allowedNets []*net.IPNet,
) *Coordinator {
	if notifier == nil {
		notifier = mail.NullNotifier{}
	}
	return &Coordinator{
		principals:  repo,
		credentials: creds,
		mfa:         mfaSvc,
		lockout:     tracker,
		limiter:     limiter,
		sessions:    registry,
		audit:       auditLog,
		notifier:    notifier,
		siteName:    siteName,
		allowedNets: allowedNets,
		nowFunc:     time.Now,
	}
}

func (c *Coordinator) ipAllowed(addr string) bool {
	if len(c.allowedNets) == 0 {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, ipNet := range c.allowedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// retryTransient runs op, sleeping and retrying exactly once when the first
// attempt died on infrastructure rather than on a verdict.
func retryTransient[T any](op func() (T, error)) (T, error) {
	ret, err := op()
	if err == nil || !IsTransient(err) {
		return ret, err
	}
	time.Sleep(params.TransientRetryDelay)
	return op()
}

// Login runs the full authentication sequence: rate limit, source address
// check, lockout checks, credential verification, then MFA where enrolled.
// Failure counters move only on a wrong password or a wrong MFA code, never
// on infrastructure errors or on the MFA_REQUIRED intermediate outcome.
func (c *Coordinator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := c.limiter.Allow(ctx, req.IP, actionLogin, ratelimit.TierAnonymous); err != nil {
		return nil, err
	}

	if !c.ipAllowed(req.IP) {
		c.audit.Record(ctx, audit.Event{
			Username:  req.Identity,
			Type:      audit.EventTypeLoginFailure,
			Severity:  audit.SeverityWarning,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Reason:    "source address not authorized",
		})
		return nil, ErrIPNotAuthorized
	}

	// the address counter is checked before the identity resolves; a locked
	// source gets the same answer for known and unknown accounts
	if err := c.checkLockout(ctx, lockout.IPIdentity(req.IP), nil, req); err != nil {
		return nil, err
	}

	principal, err := retryTransient(func() (*model.Principal, error) {
		return c.principals.GetByIdentity(ctx, req.Identity)
	})
	if err != nil {
		if err == principals.ErrPrincipalNotFound {
			// burn the same bcrypt cost as a real lookup so response
			// timing does not reveal whether the account exists
			c.credentials.VerifyDummy(req.Password)
			c.recordFailure(ctx, nil, req, audit.EventTypeLoginFailure, "unknown principal")
			return nil, credentials.ErrInvalidCredentials
		}
		return nil, &TransientError{Op: "principal lookup", Err: err}
	}

	if err := c.checkLockout(ctx, lockout.PrincipalIdentity(principal.ID), principal, req); err != nil {
		return nil, err
	}

	if principal.Status == model.PrincipalStatusSuspended || principal.Status == model.PrincipalStatusExpired {
		c.audit.Record(ctx, audit.Event{
			PrincipalID: principal.ID,
			Username:    principal.Username,
			Type:        audit.EventTypeLoginFailure,
			Severity:    audit.SeverityWarning,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			Reason:      "account " + principal.Status,
		})
		return nil, credentials.ErrInvalidCredentials
	}

	match, err := retryTransient(func() (bool, error) {
		return c.credentials.Verify(ctx, principal.ID, req.Password)
	})
	if err != nil {
		return nil, &TransientError{Op: "credential verification", Err: err}
	}
	if !match {
		c.recordFailure(ctx, principal, req, audit.EventTypeLoginFailure, "wrong password")
		return nil, credentials.ErrInvalidCredentials
	}

	enabled, err := c.mfa.Enabled(ctx, principal.ID)
	if err != nil {
		return nil, &TransientError{Op: "mfa lookup", Err: err}
	}
	if enabled {
		if req.MFACode == "" {
			methods, err := c.mfa.Methods(ctx, principal.ID)
			if err != nil {
				return nil, &TransientError{Op: "mfa lookup", Err: err}
			}
			c.audit.Record(ctx, audit.Event{
				PrincipalID: principal.ID,
				Username:    principal.Username,
				Type:        audit.EventTypeLoginMFAPending,
				Severity:    audit.SeverityInfo,
				IP:          req.IP,
				UserAgent:   req.UserAgent,
			})
			return &LoginResult{
				Status:           LoginStatusMFARequired,
				Principal:        principal,
				AvailableMethods: methods,
			}, nil
		}
		if err := c.mfa.Verify(ctx, principal.ID, req.MFACode); err != nil {
			if err == mfa.ErrCodeInvalid {
				c.recordFailure(ctx, principal, req, audit.EventTypeMFAFailure, "wrong mfa code")
				return nil, err
			}
			return nil, &TransientError{Op: "mfa verification", Err: err}
		}
	}

	return c.completeLogin(ctx, principal, req)
}

func (c *Coordinator) completeLogin(ctx context.Context, principal *model.Principal, req LoginRequest) (*LoginResult, error) {
	if err := c.lockout.Reset(ctx, lockout.PrincipalIdentity(principal.ID)); err != nil {
		slog.Warn("Failed to reset principal failure counter", "principal", principal.ID, "error", err)
	}
	if err := c.lockout.Reset(ctx, lockout.IPIdentity(req.IP)); err != nil {
		slog.Warn("Failed to reset address failure counter", "ip", req.IP, "error", err)
	}

	session, err := retryTransient(func() (*model.Session, error) {
		return c.sessions.Create(ctx, principal.ID, sessions.DeviceInfo{
			IP:         req.IP,
			UserAgent:  req.UserAgent,
			RememberMe: req.RememberMe,
		})
	})
	if err != nil {
		return nil, &TransientError{Op: "session creation", Err: err}
	}

	c.audit.Record(ctx, audit.Event{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Type:        audit.EventTypeLoginSuccess,
		Severity:    audit.SeverityInfo,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Metadata:    map[string]any{"session_id": session.ID},
	})

	now := c.nowFunc()
	mustChange := principal.MustChangePassword ||
		(!principal.PasswordExpiresAt.IsZero() && principal.PasswordExpiresAt.Before(now))

	return &LoginResult{
		Status:             LoginStatusSuccess,
		Principal:          principal,
		Session:            session,
		MustChangePassword: mustChange,
	}, nil
}

// checkLockout consults one failure counter. A locked scope blocks even a
// correct password. principal is nil for the address check, which runs before
// the identity has resolved.
func (c *Coordinator) checkLockout(ctx context.Context, identity lockout.Identity, principal *model.Principal, req LoginRequest) error {
	err := c.lockout.CheckAllowed(ctx, identity)
	if err == nil {
		return nil
	}
	lockedErr, ok := err.(*lockout.AccountLockedError)
	if !ok {
		return &TransientError{Op: "lockout check", Err: err}
	}
	event := audit.Event{
		Username:  req.Identity,
		Type:      audit.EventTypeLoginFailure,
		Severity:  audit.SeverityWarning,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Reason:    "locked " + lockedErr.Scope,
	}
	if principal != nil {
		event.PrincipalID = principal.ID
		event.Username = principal.Username
	}
	c.audit.Record(ctx, event)
	return err
}

// recordFailure moves both failure counters and reacts to a lockout firing:
// audit, status transition (done by the tracker) and a best-effort alert mail.
// principal is nil when the identity did not resolve to an account.
func (c *Coordinator) recordFailure(ctx context.Context, principal *model.Principal, req LoginRequest, eventType string, reason string) {
	event := audit.Event{
		Username:  req.Identity,
		Type:      eventType,
		Severity:  audit.SeverityWarning,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Reason:    reason,
	}
	if principal != nil {
		event.PrincipalID = principal.ID
		event.Username = principal.Username
	}
	c.audit.Record(ctx, event)

	if principal != nil {
		state, err := c.lockout.RecordFailure(ctx, lockout.PrincipalIdentity(principal.ID))
		if err != nil {
			slog.Error("Failed to record principal failure", "principal", principal.ID, "error", err)
		} else if state.LockedUntil != 0 {
			c.onLocked(ctx, principal, req, time.Unix(state.LockedUntil, 0))
		}
	}

	if _, err := c.lockout.RecordFailure(ctx, lockout.IPIdentity(req.IP)); err != nil {
		slog.Error("Failed to record address failure", "ip", req.IP, "error", err)
	}
}

func (c *Coordinator) onLocked(ctx context.Context, principal *model.Principal, req LoginRequest, until time.Time) {
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Type:        audit.EventTypeAccountLocked,
		Severity:    audit.SeverityCritical,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Metadata:    map[string]any{"locked_until": until.Unix()},
	})
	if err := mail.SendLockoutAlert(c.notifier, c.siteName, principal.Email, until); err != nil {
		slog.Warn("Failed to send lockout alert", "principal", principal.ID, "error", err)
	}
}

// Logout revokes the session behind the key. Revoking a session that is
// already gone is a success; logout is idempotent.
func (c *Coordinator) Logout(ctx context.Context, key string, ip string, userAgent string) error {
	session, err := c.sessions.Touch(ctx, key)
	if err != nil {
		if err == sessions.ErrSessionExpired || err == sessions.ErrSessionNotFound {
			return nil
		}
		return &TransientError{Op: "session lookup", Err: err}
	}
	if err := c.sessions.Revoke(ctx, key, sessions.RevokeReasonLogout); err != nil {
		return &TransientError{Op: "session revocation", Err: err}
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: session.PrincipalID,
		Type:        audit.EventTypeLogout,
		Severity:    audit.SeverityInfo,
		IP:          ip,
		UserAgent:   userAgent,
	})
	return nil
}

func (c *Coordinator) ListSessions(ctx context.Context, principalID uint, currentKey string) ([]sessions.Summary, error) {
	return c.sessions.List(ctx, principalID, currentKey)
}

// RevokeSession revokes one of the principal's own sessions from the
// self-service view.
func (c *Coordinator) RevokeSession(ctx context.Context, principalID uint, sessionID uint, ip string) error {
	if err := c.sessions.RevokeByID(ctx, principalID, sessionID, sessions.RevokeReasonSelfService); err != nil {
		return err
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Type:        audit.EventTypeSessionRevoked,
		Severity:    audit.SeverityInfo,
		IP:          ip,
		Metadata:    map[string]any{"session_id": sessionID},
	})
	return nil
}

// RevokeOtherSessions revokes every session of the principal except the one
// making the call.
func (c *Coordinator) RevokeOtherSessions(ctx context.Context, principalID uint, currentKey string, ip string) (int64, error) {
	revoked, err := c.sessions.RevokeAll(ctx, principalID, currentKey, sessions.RevokeReasonSelfService)
	if err != nil {
		return 0, err
	}
	if revoked > 0 {
		c.audit.Record(ctx, audit.Event{
			PrincipalID: principalID,
			Type:        audit.EventTypeSessionRevoked,
			Severity:    audit.SeverityInfo,
			IP:          ip,
			Metadata:    map[string]any{"revoked": revoked},
		})
	}
	return revoked, nil
}

// ChangePassword rotates the credential after re-verifying the current one,
// then drops every other session of the principal.
func (c *Coordinator) ChangePassword(ctx context.Context, principalID uint, currentKey, oldPassword, newPassword, ip string) error {
	if err := c.credentials.ChangePassword(ctx, principalID, oldPassword, newPassword); err != nil {
		return err
	}
	if _, err := c.sessions.RevokeAll(ctx, principalID, currentKey, sessions.RevokeReasonPasswordReset); err != nil {
		slog.Error("Failed to revoke sessions after password change", "principal", principalID, "error", err)
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Type:        audit.EventTypePasswordChanged,
		Severity:    audit.SeverityInfo,
		IP:          ip,
	})
	c.notifyPasswordChanged(ctx, principalID)
	return nil
}

// RequestPasswordReset issues a reset token for the identity. The outcome is
// identical whether or not the account exists; the token only ever leaves
// through the owner's mailbox.
func (c *Coordinator) RequestPasswordReset(ctx context.Context, identity string, ip string) error {
	if err := c.limiter.Allow(ctx, ip, "password_reset", ratelimit.TierAnonymous); err != nil {
		return err
	}
	principal, err := c.principals.GetByIdentity(ctx, identity)
	if err != nil {
		if err == principals.ErrPrincipalNotFound {
			return nil
		}
		return &TransientError{Op: "principal lookup", Err: err}
	}
	token, err := c.credentials.IssueResetToken(ctx, principal.ID)
	if err != nil {
		return &TransientError{Op: "reset token issue", Err: err}
	}
	err = c.notifier.Send(&mail.Message{
		To:      []string{principal.Email},
		Subject: "[" + c.siteName + "] Password reset",
		Body: "A password reset was requested for your account.\n\n" +
			"Reset token: " + token + "\n\n" +
			"The token expires in " + params.ResetTokenMaxAge.String() + ". " +
			"If you did not request this, ignore this message.\n",
	})
	if err != nil {
		slog.Warn("Failed to send reset token", "principal", principal.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token and rotates the credential. Every
// session of the principal is revoked; the attacker who triggered the reset
// does not keep a live session.
func (c *Coordinator) ResetPassword(ctx context.Context, token, newPassword, ip string) error {
	principalID, err := c.credentials.ResetPassword(ctx, token, newPassword)
	if err != nil {
		return err
	}
	if _, err := c.sessions.RevokeAll(ctx, principalID, "", sessions.RevokeReasonPasswordReset); err != nil {
		slog.Error("Failed to revoke sessions after password reset", "principal", principalID, "error", err)
	}
	if err := c.lockout.Reset(ctx, lockout.PrincipalIdentity(principalID)); err != nil {
		slog.Warn("Failed to reset failure counter after password reset", "principal", principalID, "error", err)
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Type:        audit.EventTypePasswordReset,
		Severity:    audit.SeverityInfo,
		IP:          ip,
	})
	c.notifyPasswordChanged(ctx, principalID)
	return nil
}

func (c *Coordinator) BeginMFAEnrollment(ctx context.Context, principalID uint) (*mfa.Enrollment, error) {
	principal, err := c.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.mfa.BeginEnrollment(ctx, principalID, principal.Username)
}

func (c *Coordinator) ConfirmMFAEnrollment(ctx context.Context, principalID uint, enrollmentID, code, ip string) error {
	if err := c.mfa.ConfirmEnrollment(ctx, principalID, enrollmentID, code); err != nil {
		return err
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Type:        audit.EventTypeMFAEnabled,
		Severity:    audit.SeverityInfo,
		IP:          ip,
	})
	if principal, err := c.principals.GetByID(ctx, principalID); err == nil {
		if err := mail.SendMFAEnabled(c.notifier, c.siteName, principal.Email); err != nil {
			slog.Warn("Failed to send MFA notice", "principal", principalID, "error", err)
		}
	}
	return nil
}

// DisableMFA requires the current password; a hijacked session alone cannot
// strip the second factor.
func (c *Coordinator) DisableMFA(ctx context.Context, principalID uint, password, ip string) error {
	match, err := c.credentials.Verify(ctx, principalID, password)
	if err != nil {
		return &TransientError{Op: "credential verification", Err: err}
	}
	if !match {
		return credentials.ErrInvalidCredentials
	}
	if err := c.mfa.Disable(ctx, principalID); err != nil {
		return err
	}
	c.audit.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Type:        audit.EventTypeMFADisabled,
		Severity:    audit.SeverityWarning,
		IP:          ip,
	})
	if principal, err := c.principals.GetByID(ctx, principalID); err == nil {
		if err := mail.SendMFADisabled(c.notifier, c.siteName, principal.Email); err != nil {
			slog.Warn("Failed to send MFA notice", "principal", principalID, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) notifyPasswordChanged(ctx context.Context, principalID uint) {
	principal, err := c.principals.GetByID(ctx, principalID)
	if err != nil {
		return
	}
	if err := mail.SendPasswordChanged(c.notifier, c.siteName, principal.Email, c.nowFunc()); err != nil {
		slog.Warn("Failed to send password change notice", "principal", principalID, "error", err)
	}
}
