package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
)

const (
	EventTypeLoginSuccess    = "login_success"
	EventTypeLoginFailure    = "login_failure"
	EventTypeLoginMFAPending = "login_mfa_pending"
	EventTypeMFAFailure      = "mfa_failure"
	EventTypeMFAEnabled      = "mfa_enabled"
	EventTypeMFADisabled     = "mfa_disabled"
	EventTypeLogout          = "logout"
	EventTypePasswordChanged = "password_changed"
	EventTypePasswordReset   = "password_reset"
	EventTypeAccountLocked   = "account_locked"
	EventTypeSessionRevoked  = "session_revoked"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is the write-side view of a security audit record.
type Event struct {
	PrincipalID uint // zero for pre-auth failures
	Username    string
	Type        string
	Severity    string
	IP          string
	UserAgent   string
	Reason      string
	Metadata    map[string]any
}

// Log appends security events. Audit is observability, not a gate: Record is
// synchronous best-effort and never propagates a write failure into the
// authentication flow.
type Log struct {
	repo     Repository
	fallback *slog.Logger
	timeout  time.Duration
}

func NewLog(repo Repository) *Log {
	return &Log{
		repo:     repo,
		fallback: slog.Default(),
		timeout:  params.StoreCallTimeout,
	}
}

// Record writes the event under a bounded timeout. On failure the event goes
// to the fallback log channel instead.
func (l *Log) Record(ctx context.Context, event Event) {
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	record := &model.AuditEvent{
		PrincipalID: event.PrincipalID,
		Username:    event.Username,
		EventType:   event.Type,
		Severity:    event.Severity,
		IP:          event.IP,
		UserAgent:   event.UserAgent,
		Reason:      event.Reason,
	}
	if len(event.Metadata) > 0 {
		if raw, err := json.Marshal(event.Metadata); err == nil {
			record.Metadata = raw
		}
	}

	// detach from request cancellation: the caller's response should not be
	// able to abort the append mid-flight
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.repo.Append(writeCtx, record); err != nil {
		l.fallback.Error("Failed to append audit event",
			"event_type", event.Type,
			"principal", event.PrincipalID,
			"ip", event.IP,
			"reason", event.Reason,
			"error", err,
		)
	}
}

func (l *Log) FindByPrincipal(ctx context.Context, principalID uint, limit int) ([]*model.AuditEvent, error) {
	return l.repo.FindByPrincipal(ctx, principalID, limit)
}

func (l *Log) FindByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.AuditEvent, error) {
	return l.repo.FindByTimeRange(ctx, from, to, limit)
}
