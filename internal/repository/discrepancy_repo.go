package repository

import (
	"context"
	"errors"
	"time"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDiscrepancyNotFound = errors.New("差异记录不存在")
	ErrDiscrepancyChanged  = errors.New("差异记录已被他人处理")
)

type DiscrepancyRepository struct {
	db *gorm.DB
}

func NewDiscrepancyRepository(db *gorm.DB) *DiscrepancyRepository {
	return &DiscrepancyRepository{db: db}
}

func (r *DiscrepancyRepository) CreateBatch(ctx context.Context, tx *gorm.DB, ds []*model.ReconciliationDiscrepancy) error {
	if len(ds) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).CreateInBatches(ds, 100).Error
}

func (r *DiscrepancyRepository) GetByID(ctx context.Context, id string) (*model.ReconciliationDiscrepancy, error) {
	var d model.ReconciliationDiscrepancy
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscrepancyNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListPendingReview 待人工处理的差异，严重的在前
func (r *DiscrepancyRepository) ListPendingReview(ctx context.Context, eventID string, limit int) ([]*model.ReconciliationDiscrepancy, error) {
	var ds []*model.ReconciliationDiscrepancy
	q := r.db.WithContext(ctx).Where("resolution = ?", model.ResolutionManualReview)
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	err := q.Order("detected_at DESC, id ASC").Limit(limit).Find(&ds).Error
	return ds, err
}

// UpdateResolution 条件更新：只有当前结果仍为 fromResolution 时才修改
func (r *DiscrepancyRepository) UpdateResolution(ctx context.Context, tx *gorm.DB, id, fromResolution, toResolution, notes, actor string, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{
		"resolution":       toResolution,
		"resolution_notes": notes,
		"resolved_by":      actor,
		"resolved_at":      &at,
	}
	if !model.IsResolvedOutcome(toResolution) {
		updates["resolved_at"] = nil
	}

	result := tx.WithContext(ctx).
		Model(&model.ReconciliationDiscrepancy{}).
		Where("id = ? AND resolution = ?", id, fromResolution).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDiscrepancyChanged
	}
	return nil
}
