package model

import (
	"time"

	"gorm.io/datatypes"
)

// ============================================================================
// 审计动作
// ============================================================================

const (
	AuditActionAutoCorrect       = "auto_correct"
	AuditActionCorrectionFailed  = "correction_failed"
	AuditActionManualAdjustment  = "manual_adjustment"
	AuditActionManualResolution  = "manual_resolution"
	AuditActionAlertAcknowledged = "alert_acknowledged"
)

// AuditLogEntry 审计日志表
// 只追加，不修改，不删除。对账引擎的每一次数据变更（自动或人工）对应一条。
type AuditLogEntry struct {
	ID          int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string            `gorm:"type:varchar(64);index;not null" json:"event_id"`
	Platform    string            `gorm:"type:varchar(32)" json:"platform"`
	ReportID    string            `gorm:"type:varchar(36);index" json:"report_id,omitempty"`
	Action      string            `gorm:"type:varchar(32);not null" json:"action"`
	Description string            `gorm:"type:varchar(512);not null" json:"description"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	UserID      string            `gorm:"type:varchar(64)" json:"user_id,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLogEntry) TableName() string {
	return "reconciliation_audit_log"
}
