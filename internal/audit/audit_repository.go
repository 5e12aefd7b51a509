package audit

import (
	"context"
	"time"

	"github.com/nmkhang/authcore/model"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	FindByPrincipal(ctx context.Context, principalID uint, limit int) ([]*model.AuditEvent, error)
	FindByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.AuditEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindByPrincipal(ctx context.Context, principalID uint, limit int) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *repository) FindByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
