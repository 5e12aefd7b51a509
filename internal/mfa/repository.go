package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/nmkhang/authcore/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FactorRepository interface {
	Get(ctx context.Context, principalID uint, factorType string) (*model.MFAFactor, error)
	Upsert(ctx context.Context, factor *model.MFAFactor) error
	Delete(ctx context.Context, principalID uint, factorType string) error
	// MarkUsedStep advances the replay guard to step in one conditional update.
	// Returns false when the factor is disabled or the step was already used.
	MarkUsedStep(ctx context.Context, principalID uint, factorType string, step int64) (bool, error)
}

type BackupCodeRepository interface {
	// Replace deletes all codes of the principal and inserts the given hashes.
	Replace(ctx context.Context, principalID uint, hashes []string) error
	// Consume deletes the code row matching hash. The single DELETE gives
	// at-most-once consumption under concurrent verification attempts.
	Consume(ctx context.Context, principalID uint, hash string) (bool, error)
	Count(ctx context.Context, principalID uint) (int64, error)
}

type factorRepository struct {
	db *gorm.DB
}

func NewFactorRepository(db *gorm.DB) FactorRepository {
	return &factorRepository{db: db}
}

func (r *factorRepository) Get(ctx context.Context, principalID uint, factorType string) (*model.MFAFactor, error) {
	var factor model.MFAFactor
	err := r.db.WithContext(ctx).
		First(&factor, "principal_id = ? AND type = ?", principalID, factorType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotEnabled
	}
	return &factor, err
}

func (r *factorRepository) Upsert(ctx context.Context, factor *model.MFAFactor) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(factor).Error
}

func (r *factorRepository) Delete(ctx context.Context, principalID uint, factorType string) error {
	return r.db.WithContext(ctx).
		Where("principal_id = ? AND type = ?", principalID, factorType).
		Delete(&model.MFAFactor{}).Error
}

func (r *factorRepository) MarkUsedStep(ctx context.Context, principalID uint, factorType string, step int64) (bool, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.MFAFactor{}).
		Where("principal_id = ? AND type = ? AND enabled = ? AND last_used_step < ?",
			principalID, factorType, true, step).
		Updates(map[string]any{
			"last_used_step": step,
			"last_used_at":   time.Now(),
		})
	return ret.RowsAffected > 0, ret.Error
}

type backupCodeRepository struct {
	db *gorm.DB
}

func NewBackupCodeRepository(db *gorm.DB) BackupCodeRepository {
	return &backupCodeRepository{db: db}
}

func (r *backupCodeRepository) Replace(ctx context.Context, principalID uint, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("principal_id = ?", principalID).Delete(&model.BackupCode{}).Error; err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}
		codes := make([]model.BackupCode, 0, len(hashes))
		for _, hash := range hashes {
			codes = append(codes, model.BackupCode{PrincipalID: principalID, CodeHash: hash})
		}
		return tx.Create(&codes).Error
	})
}

func (r *backupCodeRepository) Consume(ctx context.Context, principalID uint, hash string) (bool, error) {
	ret := r.db.WithContext(ctx).
		Where("principal_id = ? AND code_hash = ?", principalID, hash).
		Delete(&model.BackupCode{})
	return ret.RowsAffected > 0, ret.Error
}

func (r *backupCodeRepository) Count(ctx context.Context, principalID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BackupCode{}).
		Where("principal_id = ?", principalID).
		Count(&count).Error
	return count, err
}
