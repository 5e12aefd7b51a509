package model

import (
	"time"

	"gorm.io/gorm"
)

// MFAFactor holds the secret material of one MFA method for a principal.
// One row per principal per method type.
type MFAFactor struct {
	ID          uint   `gorm:"primarykey,autoIncrement"`
	PrincipalID uint   `gorm:"not null;index:idx_principal_factor,unique"`
	Type        string `gorm:"size:32;not null;index:idx_principal_factor,unique"`
	Secret      string `gorm:"size:128;not null"`
	Enabled     bool   `gorm:"default:false;not null"`
	// LastUsedStep records the last TOTP time step that verified successfully,
	// so a code cannot be replayed within the same step.
	LastUsedStep int64 `gorm:"default:0;not null"`
	LastUsedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// BackupCode is a hashed single-use MFA fallback code. Consumption deletes
// the row; a code row never survives a successful verification.
type BackupCode struct {
	ID          uint   `gorm:"primarykey,autoIncrement"`
	PrincipalID uint   `gorm:"not null;index:idx_principal_code,unique"`
	CodeHash    string `gorm:"size:64;not null;index:idx_principal_code,unique"`
	CreatedAt   time.Time
}
