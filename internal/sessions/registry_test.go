package sessions

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[uint]*model.Session)}
}

func (r *fakeSessionRepo) GetByKey(ctx context.Context, key string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Key == key {
			copied := *row
			return &copied, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *row
	return &copied, nil
}

// activeByRecency returns active sessions newest activity first.
// Callers must hold mu.
func (r *fakeSessionRepo) activeByRecency(principalID uint) []*model.Session {
	var active []*model.Session
	for _, row := range r.rows {
		if row.PrincipalID == principalID && row.Active {
			active = append(active, row)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivityAt.After(active[j].LastActivityAt)
	})
	return active
}

func (r *fakeSessionRepo) ListActive(ctx context.Context, principalID uint) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, row := range r.activeByRecency(principalID) {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeSessionRepo) CreateEvicting(ctx context.Context, session *model.Session, maxActive int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := r.activeByRecency(session.PrincipalID)
	if len(active) > maxActive-1 {
		for _, row := range active[maxActive-1:] {
			row.Active = false
			row.ForcedLogout = true
			row.RevokeReason = "concurrent_session_limit"
		}
	}
	r.nextID++
	session.ID = r.nextID
	copied := *session
	r.rows[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, id uint, updates map[string]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return 0, nil
	}
	for column, value := range updates {
		switch column {
		case "last_activity_at":
			row.LastActivityAt = value.(time.Time)
		case "expires_at":
			row.ExpiresAt = value.(time.Time)
		}
	}
	return 1, nil
}

func (r *fakeSessionRepo) RevokeActive(ctx context.Context, ids []uint, reason string, forced bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, id := range ids {
		row, ok := r.rows[id]
		if !ok || !row.Active {
			continue
		}
		row.Active = false
		row.ForcedLogout = forced
		row.RevokeReason = reason
		affected++
	}
	return affected, nil
}

func (r *fakeSessionRepo) RevokeAllExcept(ctx context.Context, principalID uint, exceptID uint, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, row := range r.rows {
		if row.PrincipalID != principalID || !row.Active || row.ID == exceptID {
			continue
		}
		row.Active = false
		row.ForcedLogout = true
		row.RevokeReason = reason
		affected++
	}
	return affected, nil
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:           24 * time.Hour,
		RememberMeTTL: 720 * time.Hour,
		MaxConcurrent: 3,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *fakeSessionRepo) {
	t.Helper()
	repo := newFakeSessionRepo()
	return NewRegistry(repo, nil, testSessionConfig()), repo
}

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func TestCreate_GeneratesUnguessableKeys(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)
	second, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)

	assert.NotEmpty(t, first.Key)
	assert.NotEqual(t, first.Key, second.Key)
	assert.GreaterOrEqual(t, len(first.Key), 43) // 32 random bytes, base64url
	assert.Equal(t, DeviceClassDesktop, first.DeviceClass)
}

func TestCreate_EvictsLeastRecentlyActive(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	var keys []string
	for i := 0; i < 3; i++ {
		registry.nowFunc = func() time.Time { return now.Add(time.Duration(i) * time.Minute) }
		session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
		require.NoError(t, err)
		keys = append(keys, session.Key)
	}

	// the cap is 3: a fourth session evicts the least recently active
	registry.nowFunc = func() time.Time { return now.Add(time.Hour) }
	_, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: mobileUA})
	require.NoError(t, err)

	evicted, err := repo.GetByKey(ctx, keys[0])
	require.NoError(t, err)
	assert.False(t, evicted.Active)
	assert.True(t, evicted.ForcedLogout)
	assert.Equal(t, "concurrent_session_limit", evicted.RevokeReason)

	for _, key := range keys[1:] {
		survivor, err := repo.GetByKey(ctx, key)
		require.NoError(t, err)
		assert.True(t, survivor.Active)
	}

	active, err := repo.ListActive(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestTouch_SlidingExpiry(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	registry.nowFunc = func() time.Time { return now }
	session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)
	originalExpiry := session.ExpiresAt

	// early activity updates last-activity but leaves the expiry column alone
	registry.nowFunc = func() time.Time { return now.Add(time.Hour) }
	touched, err := registry.Touch(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, originalExpiry, touched.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), touched.LastActivityAt)

	// past half the TTL the expiry slides forward
	registry.nowFunc = func() time.Time { return now.Add(13 * time.Hour) }
	touched, err = registry.Touch(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, now.Add(13*time.Hour+24*time.Hour), touched.ExpiresAt)
}

func TestTouch_ExpiredSessionRevoked(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	registry.nowFunc = func() time.Time { return now }
	session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)

	registry.nowFunc = func() time.Time { return now.Add(25 * time.Hour) }
	_, err = registry.Touch(ctx, session.Key)
	assert.ErrorIs(t, err, ErrSessionExpired)

	row, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, row.Active)
	assert.Equal(t, RevokeReasonExpired, row.RevokeReason)
}

func TestTouch_UnknownAndRevoked(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Touch(ctx, "no-such-key")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)
	require.NoError(t, registry.Revoke(ctx, session.Key, RevokeReasonLogout))

	_, err = registry.Touch(ctx, session.Key)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevoke_Idempotent(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)

	assert.NoError(t, registry.Revoke(ctx, session.Key, RevokeReasonLogout))
	assert.NoError(t, registry.Revoke(ctx, session.Key, RevokeReasonLogout))
	assert.NoError(t, registry.Revoke(ctx, "unknown-key", RevokeReasonLogout))
}

func TestRevokeByID_OwnershipChecked(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)

	// another principal cannot revoke it
	err = registry.RevokeByID(ctx, 2, session.ID, RevokeReasonSelfService)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	row, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, row.Active)

	require.NoError(t, registry.RevokeByID(ctx, 1, session.ID, RevokeReasonSelfService))
	row, err = repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, row.Active)
	assert.Equal(t, RevokeReasonSelfService, row.RevokeReason)
}

func TestRevokeAll_SparesCurrentSession(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	var current *model.Session
	for i := 0; i < 3; i++ {
		session, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
		require.NoError(t, err)
		current = session
	}

	revoked, err := registry.RevokeAll(ctx, 1, current.Key, RevokeReasonPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	active, err := repo.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, current.ID, active[0].ID)
}

func TestList_SummariesHideKey(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	registry.nowFunc = func() time.Time { return now }
	first, err := registry.Create(ctx, 1, DeviceInfo{IP: "203.0.113.7", UserAgent: desktopUA})
	require.NoError(t, err)
	registry.nowFunc = func() time.Time { return now.Add(time.Minute) }
	second, err := registry.Create(ctx, 1, DeviceInfo{IP: "198.51.100.3", UserAgent: mobileUA})
	require.NoError(t, err)

	summaries, err := registry.List(ctx, 1, second.Key)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// newest activity first, current session flagged
	assert.True(t, summaries[0].IsCurrent)
	assert.False(t, summaries[1].IsCurrent)
	assert.Equal(t, DeviceClassMobile, summaries[0].DeviceClass)
	assert.Equal(t, "203.0.113.7", summaries[1].IP)
	assert.NotEmpty(t, summaries[0].Device)

	for _, summary := range summaries {
		assert.NotContains(t, []string{first.Key, second.Key}, summary.ID)
	}
}
