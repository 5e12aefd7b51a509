package principals

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/nmkhang/authcore/model"
	"gorm.io/gorm"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrIdentityTaken     = errors.New("username or email already taken")
)

// Repository owns Principal rows and their credential history. The status
// column is only ever written through TransitionStatus so that lockout and
// administrative paths share one atomic primitive.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*model.Principal, error)
	GetByIdentity(ctx context.Context, identity string) (*model.Principal, error)
	Create(ctx context.Context, principal *model.Principal) error
	// TransitionStatus flips status from any of the given states to the target
	// in a single conditional update. Returns false when the row was not in an
	// expected state.
	TransitionStatus(ctx context.Context, id uint, from []string, to string) (bool, error)
	// RotatePassword atomically stores the new hash, pushes the old one into
	// history trimmed to keep entries, and applies the remaining column updates.
	RotatePassword(ctx context.Context, id uint, oldHash string, updates map[string]any, keep int) error
	RecentCredentials(ctx context.Context, id uint, limit int) ([]*model.CredentialHistory, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uint) (*model.Principal, error) {
	var principal model.Principal
	err := r.db.WithContext(ctx).First(&principal, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPrincipalNotFound
	}
	return &principal, err
}

func (r *repository) GetByIdentity(ctx context.Context, identity string) (*model.Principal, error) {
	column := "username"
	if _, err := mail.ParseAddress(identity); err == nil {
		column = "email"
	}
	var principal model.Principal
	err := r.db.WithContext(ctx).First(&principal, column+" = ?", identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPrincipalNotFound
	}
	return &principal, err
}

func (r *repository) Create(ctx context.Context, principal *model.Principal) error {
	err := r.db.WithContext(ctx).Create(principal).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrIdentityTaken
	}
	return err
}

func (r *repository) TransitionStatus(ctx context.Context, id uint, from []string, to string) (bool, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.Principal{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return ret.RowsAffected > 0, ret.Error
}

func (r *repository) RotatePassword(ctx context.Context, id uint, oldHash string, updates map[string]any, keep int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if oldHash != "" {
			entry := model.CredentialHistory{
				PrincipalID: id,
				Hash:        oldHash,
				Algo:        "bcrypt",
				CreatedAt:   time.Now(),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}

		// trim history to the newest keep entries; the survivors are selected
		// first because MySQL rejects OFFSET without a LIMIT
		var keepIDs []uint
		if err := newestCredentialIDs(tx, id, keep).Pluck("id", &keepIDs).Error; err != nil {
			return err
		}
		if err := deleteStaleCredentials(tx, id, keepIDs).Error; err != nil {
			return err
		}

		ret := tx.Model(&model.Principal{}).Where("id = ?", id).Updates(updates)
		if ret.Error != nil {
			return ret.Error
		}
		if ret.RowsAffected == 0 {
			return ErrPrincipalNotFound
		}
		return nil
	})
}

func newestCredentialIDs(tx *gorm.DB, id uint, keep int) *gorm.DB {
	return tx.Model(&model.CredentialHistory{}).
		Where("principal_id = ?", id).
		Order("created_at DESC, id DESC").
		Limit(keep)
}

func deleteStaleCredentials(tx *gorm.DB, id uint, keepIDs []uint) *gorm.DB {
	query := tx.Where("principal_id = ?", id)
	if len(keepIDs) > 0 {
		query = query.Where("id NOT IN ?", keepIDs)
	}
	return query.Delete(&model.CredentialHistory{})
}

func (r *repository) RecentCredentials(ctx context.Context, id uint, limit int) ([]*model.CredentialHistory, error) {
	var entries []*model.CredentialHistory
	err := r.db.WithContext(ctx).
		Where("principal_id = ?", id).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
