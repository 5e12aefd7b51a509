package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/mssola/useragent"
	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/geo"
	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
)

const (
	DeviceClassDesktop = "desktop"
	DeviceClassMobile  = "mobile"
	DeviceClassBot     = "bot"

	RevokeReasonLogout        = "logout"
	RevokeReasonExpired       = "expired"
	RevokeReasonPasswordReset = "password_reset"
	RevokeReasonSelfService   = "revoked_by_user"
)

type DeviceInfo struct {
	IP         string
	UserAgent  string
	RememberMe bool
}

// Summary is the self-service view of a session. It never carries the raw
// session key.
type Summary struct {
	ID           string    `json:"id"`
	IP           string    `json:"ip"`
	Device       string    `json:"device"`
	DeviceClass  string    `json:"device_class"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsCurrent    bool      `json:"is_current"`
}

// Registry owns session records: creation under the concurrency cap, sliding
// expiry, revocation and the self-service listing.
type Registry struct {
	repo    Repository
	geo     geo.Resolver
	cfg     config.SessionConfig
	nowFunc func() time.Time
}

func NewRegistry(repo Repository, resolver geo.Resolver, cfg config.SessionConfig) *Registry {
	if resolver == nil {
		resolver = geo.NullResolver{}
	}
	return &Registry{
		repo:    repo,
		geo:     resolver,
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

func generateSessionKey() (string, error) {
	b := make([]byte, params.SessionKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func deviceClass(userAgentString string) string {
	ua := useragent.New(userAgentString)
	switch {
	case ua.Bot():
		return DeviceClassBot
	case ua.Mobile():
		return DeviceClassMobile
	default:
		return DeviceClassDesktop
	}
}

// deviceDisplayName renders "Browser on OS" for the self-service view.
func deviceDisplayName(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown device"
	}
	ua := useragent.New(userAgentString)
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" {
		browser = "Unknown browser"
	}
	if os == "" {
		return browser
	}
	return fmt.Sprintf("%s on %s", browser, os)
}

// storeContext bounds one registry operation so a stalled database surfaces
// as a deadline error instead of hanging the login or request hot path.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, params.StoreCallTimeout)
}

func (r *Registry) ttl(rememberMe bool) time.Duration {
	if rememberMe {
		return r.cfg.RememberMeTTL
	}
	return r.cfg.TTL
}

// Create generates an unguessable key and inserts the session, evicting the
// least-recently-active sessions beyond the concurrency cap first.
func (r *Registry) Create(ctx context.Context, principalID uint, dev DeviceInfo) (*model.Session, error) {
	key, err := generateSessionKey()
	if err != nil {
		return nil, err
	}
	ctx, cancel := storeContext(ctx)
	defer cancel()

	now := r.nowFunc()
	session := &model.Session{
		Key:            key,
		PrincipalID:    principalID,
		IP:             dev.IP,
		UserAgent:      dev.UserAgent,
		DeviceClass:    deviceClass(dev.UserAgent),
		RememberMe:     dev.RememberMe,
		Active:         true,
		LastActivityAt: now,
		ExpiresAt:      now.Add(r.ttl(dev.RememberMe)),
	}
	if err := r.repo.CreateEvicting(ctx, session, r.cfg.MaxConcurrent); err != nil {
		return nil, err
	}
	return session, nil
}

// Touch validates the session and slides its expiry forward. The expiry
// column is only rewritten once the session has burned through half its TTL,
// which keeps the hot path to a single-column update most of the time. The
// staleness this trades is bounded: an idle session can expire as soon as
// TTL/2 after its last request, never earlier.
func (r *Registry) Touch(ctx context.Context, key string) (*model.Session, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	session, err := r.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	now := r.nowFunc()
	if !session.Active {
		return nil, ErrSessionExpired
	}
	if session.IsExpired(now) {
		r.repo.RevokeActive(ctx, []uint{session.ID}, RevokeReasonExpired, false)
		return nil, ErrSessionExpired
	}

	ttl := r.ttl(session.RememberMe)
	extend := session.ExpiresAt.Sub(now) < ttl/2
	newExpiry := now.Add(ttl)
	if _, err := r.repo.Update(ctx, session.ID, TouchedAt(now, newExpiry, extend)); err != nil {
		return nil, err
	}
	session.LastActivityAt = now
	if extend {
		session.ExpiresAt = newExpiry
	}
	return session, nil
}

// Revoke marks the session inactive. Revoking an already-inactive or unknown
// session is a no-op success.
func (r *Registry) Revoke(ctx context.Context, key string, reason string) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	session, err := r.repo.GetByKey(ctx, key)
	if err == ErrSessionNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.repo.RevokeActive(ctx, []uint{session.ID}, reason, false)
	return err
}

// RevokeByID revokes one of the principal's own sessions, for the
// self-service "active sessions" view.
func (r *Registry) RevokeByID(ctx context.Context, principalID uint, sessionID uint, reason string) error {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	session, err := r.repo.GetByID(ctx, sessionID)
	if err == ErrSessionNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if session.PrincipalID != principalID {
		return ErrSessionNotFound
	}
	_, err = r.repo.RevokeActive(ctx, []uint{session.ID}, reason, false)
	return err
}

// RevokeAll force-revokes every active session of the principal, optionally
// sparing the session identified by exceptKey.
func (r *Registry) RevokeAll(ctx context.Context, principalID uint, exceptKey string, reason string) (int64, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	var exceptID uint
	if exceptKey != "" {
		if current, err := r.repo.GetByKey(ctx, exceptKey); err == nil {
			exceptID = current.ID
		}
	}
	return r.repo.RevokeAllExcept(ctx, principalID, exceptID, reason)
}

// List returns summaries of the principal's live sessions, newest activity
// first.
func (r *Registry) List(ctx context.Context, principalID uint, currentKey string) ([]Summary, error) {
	ctx, cancel := storeContext(ctx)
	defer cancel()

	active, err := r.repo.ListActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	now := r.nowFunc()
	out := make([]Summary, 0, len(active))
	for _, session := range active {
		if session.IsExpired(now) {
			continue
		}
		out = append(out, Summary{
			ID:           strconv.FormatUint(uint64(session.ID), 10),
			IP:           session.IP,
			Device:       deviceDisplayName(session.UserAgent),
			DeviceClass:  session.DeviceClass,
			Location:     r.geo.Resolve(session.IP).String(),
			CreatedAt:    session.CreatedAt,
			LastActivity: session.LastActivityAt,
			IsCurrent:    session.Key == currentKey,
		})
	}
	return out, nil
}
