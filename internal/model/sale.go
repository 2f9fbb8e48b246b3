package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	SaleStatusActive = "ACTIVE"
	SaleStatusMerged = "MERGED" // 被判定为重复购买，已合并到最早的那条记录
)

const (
	SaleSourceImport         = "IMPORT"
	SaleSourceReconciliation = "RECONCILIATION"
	SaleSourceManual         = "MANUAL"
)

// SaleRecord 本地售票记录表
// 购票/导入时创建，只有对账自动修正会修改；只有人工调整才能删除（软删除）
type SaleRecord struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID         string         `gorm:"type:varchar(64);index:idx_sale_event_platform;not null" json:"event_id"`
	Platform        string         `gorm:"type:varchar(32);index:idx_sale_event_platform;not null" json:"platform"`
	PlatformOrderID *string        `gorm:"type:varchar(128);index" json:"platform_order_id"` // 纯人工售票为空
	CustomerName    string         `gorm:"type:varchar(128)" json:"customer_name"`
	CustomerEmail   string         `gorm:"type:varchar(128)" json:"customer_email"`
	TicketType      string         `gorm:"type:varchar(64)" json:"ticket_type"`
	Quantity        int            `gorm:"not null;default:1" json:"quantity"`
	TotalAmount     int64          `gorm:"not null" json:"total_amount"` // 最小货币单位
	Currency        string         `gorm:"type:varchar(3);not null" json:"currency"`
	Status          string         `gorm:"type:varchar(20);index;not null;default:ACTIVE" json:"status"`
	MergedInto      *int64         `json:"merged_into,omitempty"`
	Invoiced        bool           `gorm:"not null;default:false" json:"invoiced"` // 开票系统置位，已结算/已开票
	Source          string         `gorm:"type:varchar(20);not null;default:IMPORT" json:"source"`
	PurchasedAt     time.Time      `gorm:"not null;index" json:"purchased_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (SaleRecord) TableName() string {
	return "ticket_sale"
}

// OrderID 返回平台订单号，人工售票返回空串
func (s *SaleRecord) OrderID() string {
	if s.PlatformOrderID == nil {
		return ""
	}
	return strings.TrimSpace(*s.PlatformOrderID)
}

// CustomerKey 客户身份标识：优先邮箱，其次姓名，均忽略大小写
func (s *SaleRecord) CustomerKey() string {
	if email := strings.ToLower(strings.TrimSpace(s.CustomerEmail)); email != "" {
		return email
	}
	return strings.ToLower(strings.TrimSpace(s.CustomerName))
}

func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(v int64) *int64 {
	return &v
}
