package model

import (
	"time"
)

const (
	AlertTypeCriticalDiscrepancies = "critical_discrepancies"
	AlertTypeSyncFailure           = "sync_failure"
	AlertTypeDataInconsistency     = "data_inconsistency"
)

// ReconciliationAlert 对账告警，生命周期：未确认 -> 已确认
type ReconciliationAlert struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReportID       string     `gorm:"type:varchar(36);index" json:"report_id"`
	EventID        string     `gorm:"type:varchar(64);index;not null" json:"event_id"`
	Platform       string     `gorm:"type:varchar(32);not null" json:"platform"`
	Type           string     `gorm:"type:varchar(32);not null" json:"type"`
	Severity       string     `gorm:"type:varchar(16);not null" json:"severity"`
	Message        string     `gorm:"type:text;not null" json:"message"`
	Acknowledged   bool       `gorm:"not null;default:false;index" json:"acknowledged"`
	AcknowledgedBy string     `gorm:"type:varchar(64)" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ReconciliationAlert) TableName() string {
	return "reconciliation_alert"
}
