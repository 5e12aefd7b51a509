package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/nmkhang/authcore/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetByKey(ctx context.Context, key string) (*model.Session, error)
	GetByID(ctx context.Context, id uint) (*model.Session, error)
	ListActive(ctx context.Context, principalID uint) ([]*model.Session, error)
	// CreateEvicting inserts the session after revoking the oldest-by-activity
	// active sessions down to maxActive-1, all inside one transaction so the
	// concurrency cap holds immediately after creation.
	CreateEvicting(ctx context.Context, session *model.Session, maxActive int) error
	Update(ctx context.Context, id uint, updates map[string]any) (int64, error)
	// RevokeActive marks the given sessions inactive; already-inactive rows
	// are left untouched, which makes revocation idempotent.
	RevokeActive(ctx context.Context, ids []uint, reason string, forced bool) (int64, error)
	RevokeAllExcept(ctx context.Context, principalID uint, exceptID uint, reason string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByKey(ctx context.Context, key string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return &session, err
}

func (r *repository) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	return &session, err
}

func (r *repository) ListActive(ctx context.Context, principalID uint) ([]*model.Session, error) {
	var out []*model.Session
	err := r.db.WithContext(ctx).
		Where("principal_id = ? AND active = ?", principalID, true).
		Order("last_activity_at DESC").
		Find(&out).Error
	return out, err
}

func (r *repository) CreateEvicting(ctx context.Context, session *model.Session, maxActive int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []*model.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("principal_id = ? AND active = ?", session.PrincipalID, true).
			Order("last_activity_at DESC").
			Find(&active).Error
		if err != nil {
			return err
		}

		// keep the newest maxActive-1, evict the rest before inserting
		if len(active) > maxActive-1 {
			evict := make([]uint, 0, len(active)-maxActive+1)
			for _, s := range active[maxActive-1:] {
				evict = append(evict, s.ID)
			}
			err := tx.Model(&model.Session{}).
				Where("id IN ?", evict).
				Updates(map[string]any{
					"active":        false,
					"forced_logout": true,
					"revoke_reason": "concurrent_session_limit",
				}).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(session).Error
	})
}

func (r *repository) Update(ctx context.Context, id uint, updates map[string]any) (int64, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(updates)
	return ret.RowsAffected, ret.Error
}

func (r *repository) RevokeActive(ctx context.Context, ids []uint, reason string, forced bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ret := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id IN ? AND active = ?", ids, true).
		Updates(map[string]any{
			"active":        false,
			"forced_logout": forced,
			"revoke_reason": reason,
		})
	return ret.RowsAffected, ret.Error
}

func (r *repository) RevokeAllExcept(ctx context.Context, principalID uint, exceptID uint, reason string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("principal_id = ? AND active = ?", principalID, true)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	ret := query.Updates(map[string]any{
		"active":        false,
		"forced_logout": true,
		"revoke_reason": reason,
	})
	return ret.RowsAffected, ret.Error
}

// TouchedAt bundles the sliding-expiry columns updated on activity.
func TouchedAt(lastActivity, expiresAt time.Time, extend bool) map[string]any {
	updates := map[string]any{
		"last_activity_at": lastActivity,
	}
	if extend {
		updates["expires_at"] = expiresAt
	}
	return updates
}
