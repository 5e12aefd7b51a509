package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nmkhang/authcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuditRepo struct {
	mu       sync.Mutex
	events   []*model.AuditEvent
	appendFn func(event *model.AuditEvent) error
}

func (r *fakeAuditRepo) Append(ctx context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendFn != nil {
		if err := r.appendFn(event); err != nil {
			return err
		}
	}
	r.events = append(r.events, event)
	return nil
}

func (r *fakeAuditRepo) FindByPrincipal(ctx context.Context, principalID uint, limit int) ([]*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditEvent
	for _, event := range r.events {
		if event.PrincipalID == principalID {
			out = append(out, event)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAuditRepo) FindByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events, nil
}

func TestRecord_MapsEventFields(t *testing.T) {
	repo := &fakeAuditRepo{}
	log := NewLog(repo)

	log.Record(context.Background(), Event{
		PrincipalID: 7,
		Username:    "alice",
		Type:        EventTypeLoginFailure,
		Severity:    SeverityWarning,
		IP:          "203.0.113.7",
		UserAgent:   "curl/8.0",
		Reason:      "wrong password",
		Metadata:    map[string]any{"attempt": 3},
	})

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, uint(7), event.PrincipalID)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, EventTypeLoginFailure, event.EventType)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, "wrong password", event.Reason)
	assert.JSONEq(t, `{"attempt":3}`, string(event.Metadata))
}

func TestRecord_DefaultsSeverity(t *testing.T) {
	repo := &fakeAuditRepo{}
	log := NewLog(repo)

	log.Record(context.Background(), Event{Type: EventTypeLogout})

	require.Len(t, repo.events, 1)
	assert.Equal(t, SeverityInfo, repo.events[0].Severity)
}

// Audit is best-effort: a failing backend must not panic or block the caller.
func TestRecord_SwallowsBackendFailure(t *testing.T) {
	repo := &fakeAuditRepo{
		appendFn: func(event *model.AuditEvent) error {
			return errors.New("disk full")
		},
	}
	log := NewLog(repo)

	log.Record(context.Background(), Event{Type: EventTypeLoginSuccess, PrincipalID: 1})
	assert.Empty(t, repo.events)
}

// Record detaches from the caller's context: an already-canceled request
// context must not abort the append.
func TestRecord_SurvivesCanceledContext(t *testing.T) {
	repo := &fakeAuditRepo{}
	log := NewLog(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log.Record(ctx, Event{Type: EventTypeLogout, PrincipalID: 1})
	assert.Len(t, repo.events, 1)
}

func TestFindByPrincipal(t *testing.T) {
	repo := &fakeAuditRepo{}
	log := NewLog(repo)

	log.Record(context.Background(), Event{Type: EventTypeLoginSuccess, PrincipalID: 1})
	log.Record(context.Background(), Event{Type: EventTypeLoginSuccess, PrincipalID: 2})

	events, err := log.FindByPrincipal(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint(1), events[0].PrincipalID)
}
