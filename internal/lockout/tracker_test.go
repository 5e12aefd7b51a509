package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		Threshold:     5,
		IPThreshold:   10,
		Duration:      30 * time.Minute,
		FailureWindow: 15 * time.Minute,
	}
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(store.NewMemoryStorage(), nil, testLockoutConfig())
}

func TestRecordFailure_LocksAtThreshold(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	identity := PrincipalIdentity(1)

	for i := 1; i < 5; i++ {
		state, err := tracker.RecordFailure(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, i, state.Failures)
		assert.Zero(t, state.LockedUntil)
		assert.NoError(t, tracker.CheckAllowed(ctx, identity))
	}

	state, err := tracker.RecordFailure(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Failures)
	assert.NotZero(t, state.LockedUntil)

	err = tracker.CheckAllowed(ctx, identity)
	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, "principal", lockedErr.Scope)
	assert.Greater(t, lockedErr.RetryAfter(time.Now()), time.Duration(0))
}

func TestCheckAllowed_LazyResetAfterLockElapses(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	identity := PrincipalIdentity(1)

	now := time.Now()
	tracker.nowFunc = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		_, err := tracker.RecordFailure(ctx, identity)
		require.NoError(t, err)
	}
	require.Error(t, tracker.CheckAllowed(ctx, identity))

	// one second past the lock expiry
	tracker.nowFunc = func() time.Time { return now.Add(30*time.Minute + time.Second) }
	assert.NoError(t, tracker.CheckAllowed(ctx, identity))

	// the elapsed lock also cleared the counter: one more failure does not lock
	state, err := tracker.RecordFailure(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Failures)
	assert.Zero(t, state.LockedUntil)
}

func TestReset_ClearsCounter(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	identity := PrincipalIdentity(1)

	for i := 0; i < 4; i++ {
		_, err := tracker.RecordFailure(ctx, identity)
		require.NoError(t, err)
	}
	require.NoError(t, tracker.Reset(ctx, identity))

	state, err := tracker.RecordFailure(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Failures)
}

func TestCheckAllowed_UnknownIdentity(t *testing.T) {
	tracker := newTestTracker(t)
	assert.NoError(t, tracker.CheckAllowed(context.Background(), PrincipalIdentity(42)))
	assert.NoError(t, tracker.CheckAllowed(context.Background(), IPIdentity("203.0.113.7")))
}

func TestRecordFailure_IndependentCounters(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := tracker.RecordFailure(ctx, PrincipalIdentity(1))
		require.NoError(t, err)
	}

	assert.Error(t, tracker.CheckAllowed(ctx, PrincipalIdentity(1)))
	assert.NoError(t, tracker.CheckAllowed(ctx, PrincipalIdentity(2)))
	assert.NoError(t, tracker.CheckAllowed(ctx, IPIdentity("203.0.113.7")))
}

func TestRecordFailure_IPThreshold(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	identity := IPIdentity("203.0.113.7")

	// the per-address threshold is higher than the per-principal one
	for i := 0; i < 9; i++ {
		state, err := tracker.RecordFailure(ctx, identity)
		require.NoError(t, err)
		assert.Zero(t, state.LockedUntil)
	}

	state, err := tracker.RecordFailure(ctx, identity)
	require.NoError(t, err)
	assert.NotZero(t, state.LockedUntil)

	err = tracker.CheckAllowed(ctx, identity)
	var lockedErr *AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, "ip", lockedErr.Scope)
}

// flakyExpireStorage drops every TTL write but leaves the rest of the
// backend intact.
type flakyExpireStorage struct {
	store.Storage
}

func (s *flakyExpireStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	return errors.New("expire unavailable")
}

func TestRecordFailure_SurvivesExpireFailure(t *testing.T) {
	tracker := NewTracker(&flakyExpireStorage{Storage: store.NewMemoryStorage()}, nil, testLockoutConfig())
	ctx := context.Background()
	identity := PrincipalIdentity(1)

	// counting and locking still work when the TTL write keeps failing
	for i := 1; i <= 4; i++ {
		state, err := tracker.RecordFailure(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, i, state.Failures)
	}
	state, err := tracker.RecordFailure(ctx, identity)
	require.NoError(t, err)
	assert.NotZero(t, state.LockedUntil)

	var lockedErr *AccountLockedError
	require.ErrorAs(t, tracker.CheckAllowed(ctx, identity), &lockedErr)
}

func TestIdentityKeys_Sanitized(t *testing.T) {
	// IPv6 addresses carry colons, the key separator
	identity := IPIdentity("2001:db8::1")
	assert.NotContains(t, identity.key(), "2001:db8::1")
	assert.Equal(t, "ip:2001_cdb8_c_c1", identity.key())
}
