package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/principals"
	"github.com/nmkhang/authcore/internal/store"
	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
)

// State mirrors one failure counter record. Counters carry their own TTL so
// storage is self-cleaning; abandoned counters vanish without a sweep job.
type State struct {
	Failures       int   `redis:"failures"`
	FirstFailureAt int64 `redis:"first_failure_at"` // unix seconds
	LockedUntil    int64 `redis:"locked_until"`     // unix seconds, zero when not locked
}

func (s *State) Locked(now time.Time) bool {
	return s.LockedUntil != 0 && now.Unix() < s.LockedUntil
}

// Tracker counts authentication failures per principal and per source IP.
// All counter updates go through atomic increments on the backing store;
// there is no read-modify-write anywhere.
type Tracker struct {
	counters   store.Store[State]
	principals principals.Repository
	cfg        config.LockoutConfig
	nowFunc    func() time.Time
}

func NewTracker(storage store.Storage, repo principals.Repository, cfg config.LockoutConfig) *Tracker {
	return &Tracker{
		counters:   store.New[State](storage, params.LockoutKeyPrefix),
		principals: repo,
		cfg:        cfg,
		nowFunc:    time.Now,
	}
}

func (t *Tracker) threshold(identity Identity) int {
	if identity.IsPrincipal() {
		return t.cfg.Threshold
	}
	return t.cfg.IPThreshold
}

// RecordFailure increments the counter and locks the identity once the
// threshold is reached. The increment is atomic; concurrent failures for the
// same identity cannot lose updates.
func (t *Tracker) RecordFailure(ctx context.Context, identity Identity) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	now := t.nowFunc()
	key := identity.key()

	failures, err := t.counters.IncrAttr(ctx, key, "failures", 1)
	if err != nil {
		return nil, err
	}
	if failures == 1 {
		if err := t.counters.SetAttr(ctx, key, "first_failure_at", now.Unix()); err != nil {
			slog.Warn("Failed to stamp failure window start", "key", key, "error", err)
		}
		// without the TTL the counter would outlive its window
		if err := t.counters.Expire(ctx, key, now.Add(t.cfg.FailureWindow)); err != nil {
			slog.Warn("Failed to expire failure counter", "key", key, "error", err)
		}
	}

	state := &State{Failures: int(failures)}
	if int(failures) < t.threshold(identity) {
		return state, nil
	}

	until := now.Add(t.cfg.Duration)
	state.LockedUntil = until.Unix()
	if err := t.counters.SetAttr(ctx, key, "locked_until", until.Unix()); err != nil {
		return nil, err
	}
	// keep the record alive exactly as long as the lock
	if err := t.counters.Expire(ctx, key, until); err != nil {
		slog.Warn("Failed to expire lock record", "key", key, "error", err)
	}

	if identity.IsPrincipal() {
		t.setPrincipalStatus(ctx, identity.PrincipalID(), model.PrincipalStatusActive, model.PrincipalStatusLocked)
	}
	return state, nil
}

// CheckAllowed fails with AccountLockedError while the identity is locked.
// An elapsed lock is reset lazily here; no background sweep exists.
func (t *Tracker) CheckAllowed(ctx context.Context, identity Identity) error {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	var lockedUntil int64
	err := t.counters.GetAttr(ctx, identity.key(), "locked_until", &lockedUntil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lockedUntil == 0 {
		return nil
	}

	now := t.nowFunc()
	until := time.Unix(lockedUntil, 0)
	if now.Before(until) {
		return &AccountLockedError{Until: until, Scope: identity.Scope()}
	}
	return t.reset(ctx, identity)
}

// Reset clears the counter and lock state unconditionally. Called only after
// a fully successful authentication, including MFA where required.
func (t *Tracker) Reset(ctx context.Context, identity Identity) error {
	return t.reset(ctx, identity)
}

func (t *Tracker) reset(ctx context.Context, identity Identity) error {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	err := t.counters.Delete(ctx, identity.key())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if identity.IsPrincipal() {
		t.setPrincipalStatus(ctx, identity.PrincipalID(), model.PrincipalStatusLocked, model.PrincipalStatusActive)
	}
	return nil
}

func (t *Tracker) setPrincipalStatus(ctx context.Context, id uint, from string, to string) {
	if t.principals == nil || id == 0 {
		return
	}
	if _, err := t.principals.TransitionStatus(ctx, id, []string{from}, to); err != nil {
		slog.Error("Failed to transition principal status", "principal", id, "to", to, "error", err)
	}
}
