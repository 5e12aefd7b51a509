package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	PrincipalStatusActive    = "ACTIVE"
	PrincipalStatusLocked    = "LOCKED"
	PrincipalStatusSuspended = "SUSPENDED"
	PrincipalStatusExpired   = "EXPIRED"
)

// Principal is a login identity scoped to a tenant. Principals are never
// deleted, only deactivated via the status field.
type Principal struct {
	ID                 uint   `gorm:"primarykey"`
	Username           string `gorm:"uniqueIndex;size:32;not null"`
	FullName           string `gorm:"size:64;not null"`
	Email              string `gorm:"uniqueIndex;size:256;not null"`
	TenantID           uint   `gorm:"index;not null"`
	Status             string `gorm:"size:16;default:ACTIVE;not null"`
	PasswordHash       string `gorm:"size:128;not null"`
	PasswordAlgo       string `gorm:"size:16;default:bcrypt;not null"`
	PasswordChangedAt  time.Time
	PasswordExpiresAt  time.Time
	MustChangePassword bool `gorm:"default:false;not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (p *Principal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}

// CredentialHistory keeps the last N password hashes of a principal so a
// changed password cannot be rotated back within the history window.
type CredentialHistory struct {
	ID          uint   `gorm:"primarykey,autoIncrement"`
	PrincipalID uint   `gorm:"index;not null"`
	Hash        string `gorm:"size:128;not null"`
	Algo        string `gorm:"size:16;not null"`
	CreatedAt   time.Time
}
