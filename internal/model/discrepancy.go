package model

import (
	"time"
)

// ============================================================================
// 差异类型、严重度、处理结果
// ============================================================================

const (
	DiscrepancyMissingSale       = "missing_sale"       // 平台有、本地无
	DiscrepancyAmountMismatch    = "amount_mismatch"    // 双方都有但金额/币种不一致
	DiscrepancyDuplicateSale     = "duplicate_sale"     // 本地疑似重复提交
	DiscrepancyDataInconsistency = "data_inconsistency" // 本地有、平台不认可
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SeverityRank 未知严重度按最高处理
func SeverityRank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return severityRank[SeverityCritical]
}

func MaxSeverity(a, b string) string {
	if SeverityRank(a) >= SeverityRank(b) {
		return a
	}
	return b
}

const (
	ResolutionAutoCorrected   = "auto_corrected"
	ResolutionManualReview    = "manual_review"
	ResolutionIgnored         = "ignored"
	ResolutionPlatformUpdated = "platform_updated"
)

// IsResolvedOutcome manual_review 表示待人工处理，不计入已解决
func IsResolvedOutcome(resolution string) bool {
	switch resolution {
	case ResolutionAutoCorrected, ResolutionIgnored, ResolutionPlatformUpdated:
		return true
	}
	return false
}

// Difference 字段级差异
type Difference struct {
	Field         string `json:"field"`
	LocalValue    string `json:"local_value"`
	PlatformValue string `json:"platform_value"`
}

// ReconciliationDiscrepancy 一条差异，始终属于唯一一份报告。
// Resolution 只在检测到之后、处理之前为空；报告完成时一定已填写。
type ReconciliationDiscrepancy struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReportID string `gorm:"type:varchar(36);index;not null" json:"report_id"`
	EventID  string `gorm:"type:varchar(64);index;not null" json:"event_id"`
	Platform string `gorm:"type:varchar(32);not null" json:"platform"`
	Type     string `gorm:"type:varchar(32);not null" json:"type"`
	Severity string `gorm:"type:varchar(16);not null" json:"severity"`

	OrderID         string `gorm:"type:varchar(128);index" json:"order_id,omitempty"`
	LocalSaleID     *int64 `json:"local_sale_id,omitempty"`
	CanonicalSaleID *int64 `json:"canonical_sale_id,omitempty"` // duplicate_sale 指向的最早记录
	// 重复记录自身的订单号也被平台确认过，两笔可能都是真实购买
	PlatformConfirmed bool  `gorm:"not null;default:false" json:"platform_confirmed"`
	Impact            int64 `gorm:"not null;default:0" json:"impact"` // 金额影响，最小货币单位

	LocalData    *SaleRecord         `gorm:"serializer:json;type:text" json:"local_data,omitempty"`
	PlatformData *PlatformSaleRecord `gorm:"serializer:json;type:text" json:"platform_data,omitempty"`
	Difference   *Difference         `gorm:"serializer:json;type:text" json:"difference,omitempty"`

	DetectedAt      time.Time  `gorm:"not null" json:"detected_at"`
	Resolution      string     `gorm:"type:varchar(20);index" json:"resolution,omitempty"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `gorm:"type:varchar(64)" json:"resolved_by,omitempty"`
}

func (ReconciliationDiscrepancy) TableName() string {
	return "reconciliation_discrepancy"
}
