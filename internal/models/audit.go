package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionLogin  AuditAction = "login"
	AuditActionLogout AuditAction = "logout"
	AuditActionRedeem AuditAction = "redeem"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	Username    string         `gorm:"size:100" json:"username"`
	Action      AuditAction    `gorm:"size:50;not null;index" json:"action"`
	EntityType  string         `gorm:"size:50;index" json:"entity_type"` // user, report, serial, submission
	EntityID    string         `gorm:"size:255;index" json:"entity_id"`
	Description string         `gorm:"size:500" json:"description"`
	Payload     datatypes.JSON `json:"payload"`
	IPAddress   string         `gorm:"size:50" json:"ip_address"`
	UserAgent   string         `gorm:"size:255" json:"user_agent"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
