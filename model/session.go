package model

import (
	"time"

	"gorm.io/gorm"
)

// Session is a durable login session record. Expiry is a field checked on
// access, not a storage TTL; expired or revoked sessions stay on disk for
// forensics until pruned externally.
type Session struct {
	ID             uint   `gorm:"primarykey"`
	Key            string `gorm:"uniqueIndex;size:64;not null"`
	PrincipalID    uint   `gorm:"index;not null"`
	IP             string `gorm:"size:45;not null"`
	UserAgent      string `gorm:"size:512;not null"`
	DeviceClass    string `gorm:"size:16;not null"`
	RememberMe     bool   `gorm:"default:false;not null"`
	Active         bool   `gorm:"default:true;not null;index"`
	ForcedLogout   bool   `gorm:"default:false;not null"`
	RevokeReason   string `gorm:"size:64"`
	LastActivityAt time.Time `gorm:"index;not null"`
	ExpiresAt      time.Time `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == 0 {
		s.ID = GenerateID()
	}
	return nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
