package repository

import (
	"context"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
)

type AdjustmentRepository struct {
	db *gorm.DB
}

func NewAdjustmentRepository(db *gorm.DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

func (r *AdjustmentRepository) Create(ctx context.Context, tx *gorm.DB, adj *model.ManualAdjustment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(adj).Error
}

func (r *AdjustmentRepository) ListByEvent(ctx context.Context, eventID string, limit int) ([]*model.ManualAdjustment, error) {
	var adjs []*model.ManualAdjustment
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&adjs).Error
	return adjs, err
}
