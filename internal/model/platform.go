package model

import (
	"time"
)

const (
	PlatformHumanitix  = "humanitix"
	PlatformEventbrite = "eventbrite"
)

// PlatformSaleRecord 票务平台侧的订单视图，只在一次对账过程中存在，不落库
type PlatformSaleRecord struct {
	OrderID       string    `json:"order_id"`
	EventID       string    `json:"event_id"`
	Platform      string    `json:"platform"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	TicketType    string    `json:"ticket_type"`
	Quantity      int       `json:"quantity"`
	TotalAmount   int64     `json:"total_amount"`
	Currency      string    `json:"currency"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

// TicketPlatform 活动与票务平台的关联，记录平台侧的活动ID
type TicketPlatform struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID         string    `gorm:"type:varchar(64);uniqueIndex:uk_event_platform;not null" json:"event_id"`
	Platform        string    `gorm:"type:varchar(32);uniqueIndex:uk_event_platform;not null" json:"platform"`
	ExternalEventID string    `gorm:"type:varchar(128);not null" json:"external_event_id"`
	IsPrimary       bool      `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TicketPlatform) TableName() string {
	return "ticket_platform"
}
