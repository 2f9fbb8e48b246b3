package model

import (
	"time"
)

const (
	AdjustmentAddSale      = "add_sale"
	AdjustmentRemoveSale   = "remove_sale"
	AdjustmentUpdateAmount = "update_amount"
)

// AdjustmentPayload 人工调整携带的售票数据
type AdjustmentPayload struct {
	PlatformOrderID string     `json:"platform_order_id,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	TicketType      string     `json:"ticket_type,omitempty"`
	Quantity        int        `json:"quantity,omitempty"`
	TotalAmount     int64      `json:"total_amount"`
	Currency        string     `json:"currency,omitempty"`
	PurchasedAt     *time.Time `json:"purchased_at,omitempty"`
}

// ManualAdjustment 运营人员发起的人工调整，是人工写入售票数据的唯一入口
type ManualAdjustment struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	AdjustmentNo string            `gorm:"type:varchar(32);uniqueIndex;not null" json:"adjustment_no"`
	EventID      string            `gorm:"type:varchar(64);index;not null" json:"event_id"`
	Platform     string            `gorm:"type:varchar(32);not null" json:"platform"`
	Type         string            `gorm:"type:varchar(20);not null" json:"type"`
	SaleID       *int64            `json:"sale_id,omitempty"`
	Payload      AdjustmentPayload `gorm:"serializer:json;type:text" json:"payload"`
	Reason       string            `gorm:"type:varchar(512);not null" json:"reason"`
	UserID       string            `gorm:"type:varchar(64)" json:"user_id,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (ManualAdjustment) TableName() string {
	return "manual_adjustment"
}
