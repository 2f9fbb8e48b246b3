package model

import (
	"time"
)

const (
	ReportStatusRunning   = "running"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

const (
	SyncHealthHealthy  = "healthy"
	SyncHealthWarning  = "warning"
	SyncHealthCritical = "critical"
)

// 报告状态只能从 running 迁移一次，completed/failed 为终态
var ValidReportTransitions = map[string][]string{
	ReportStatusRunning: {ReportStatusCompleted, ReportStatusFailed},
}

func CanReportTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidReportTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ReconciliationReport 一次 (活动, 平台) 对账运行的结果
type ReconciliationReport struct {
	ID                    string                       `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventID               string                       `gorm:"type:varchar(64);index:idx_report_event;not null" json:"event_id"`
	Platform              string                       `gorm:"type:varchar(32);not null" json:"platform"`
	ConfigVersion         int64                        `gorm:"not null" json:"config_version"`
	Status                string                       `gorm:"type:varchar(20);index;not null" json:"status"`
	StartTime             time.Time                    `gorm:"not null;index" json:"start_time"`
	EndTime               *time.Time                   `json:"end_time"`
	TotalLocalSales       int                          `gorm:"not null;default:0" json:"total_local_sales"`
	TotalPlatformSales    int                          `gorm:"not null;default:0" json:"total_platform_sales"`
	TotalLocalRevenue     int64                        `gorm:"not null;default:0" json:"total_local_revenue"`
	TotalPlatformRevenue  int64                        `gorm:"not null;default:0" json:"total_platform_revenue"`
	DiscrepanciesFound    int                          `gorm:"not null;default:0" json:"discrepancies_found"`
	DiscrepanciesResolved int                          `gorm:"not null;default:0" json:"discrepancies_resolved"`
	SyncHealth            string                       `gorm:"type:varchar(20)" json:"sync_health"`
	ErrorMessage          string                       `gorm:"type:text" json:"error_message,omitempty"`
	Discrepancies         []*ReconciliationDiscrepancy `gorm:"foreignKey:ReportID" json:"details,omitempty"`
	CreatedAt             time.Time                    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time                    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReconciliationReport) TableName() string {
	return "reconciliation_report"
}

// RunKey 对账互斥的粒度：同一活动同一平台
func RunKey(eventID, platform string) string {
	return eventID + ":" + platform
}
