package model

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditLog 只追加，不提供修改和删除
type AuditLog struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	ActorID    *uint64   `gorm:"index" json:"actorId,omitempty"`
	Action     string    `gorm:"size:64;not null;index" json:"action"`
	TargetType string    `gorm:"size:32;index" json:"targetType,omitempty"`
	TargetID   string    `gorm:"size:64" json:"targetId,omitempty"`
	Severity   Severity  `gorm:"size:16;not null;default:info;index" json:"severity"`
	Status     string    `gorm:"size:16;not null;default:success" json:"status"`
	IP         string    `gorm:"size:64" json:"ip,omitempty"`
	UserAgent  string    `gorm:"size:255" json:"userAgent,omitempty"`
	Details    JSONMap   `gorm:"type:json" json:"details,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
