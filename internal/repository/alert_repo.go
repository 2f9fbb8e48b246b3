package repository

import (
	"context"
	"errors"
	"time"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
)

var ErrAlertNotFound = errors.New("告警不存在")

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, tx *gorm.DB, alert *model.ReconciliationAlert) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(alert).Error
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*model.ReconciliationAlert, error) {
	var alert model.ReconciliationAlert
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// List eventID 为空时查全部，新的在前
func (r *AlertRepository) List(ctx context.Context, eventID string, onlyUnacknowledged bool, limit int) ([]*model.ReconciliationAlert, error) {
	var alerts []*model.ReconciliationAlert
	q := r.db.WithContext(ctx)
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	if onlyUnacknowledged {
		q = q.Where("acknowledged = ?", false)
	}
	err := q.Order("created_at DESC, id ASC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// Acknowledge 未确认 -> 已确认，返回本次是否真正发生了迁移
func (r *AlertRepository) Acknowledge(ctx context.Context, tx *gorm.DB, id, actor string, at time.Time) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ReconciliationAlert{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_by": actor,
			"acknowledged_at": &at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
