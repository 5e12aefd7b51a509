package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent is an append-only security event record. Rows are never updated
// or deleted by this service; retention is governed externally.
type AuditEvent struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	PrincipalID uint           `gorm:"index"`                  // zero for pre-auth failures
	Username    string         `gorm:"size:64;index"`          // snapshot of identity at event time
	EventType   string         `gorm:"size:64;not null;index"` // login_success, login_failure...
	Severity    string         `gorm:"size:16;not null"`
	IP          string         `gorm:"size:45;not null"` // IPv4/IPv6
	UserAgent   string         `gorm:"size:512;not null"`
	Reason      string         `gorm:"size:512"` // failure reason or context
	Metadata    datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
