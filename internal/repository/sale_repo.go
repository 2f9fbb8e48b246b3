package repository

import (
	"context"
	"errors"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSaleNotFound = errors.New("售票记录不存在")
	ErrSaleStale    = errors.New("售票记录已被修改，修正未生效")
)

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, tx *gorm.DB, sale *model.SaleRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sale).Error
}

func (r *SaleRepository) GetByID(ctx context.Context, id int64) (*model.SaleRecord, error) {
	var sale model.SaleRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.SaleRecord, error) {
	var sale model.SaleRecord
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// ListActive 有效记录：未合并、未软删除
func (r *SaleRepository) ListActive(ctx context.Context, eventID, platform string) ([]*model.SaleRecord, error) {
	var sales []*model.SaleRecord
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND platform = ? AND status = ?", eventID, platform, model.SaleStatusActive).
		Order("purchased_at ASC, id ASC").
		Find(&sales).Error
	return sales, err
}

// ExistsByOrderID 有效记录中是否已有该平台订单号
func (r *SaleRepository) ExistsByOrderID(ctx context.Context, tx *gorm.DB, eventID, platform, orderID string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.SaleRecord{}).
		Where("event_id = ? AND platform = ? AND platform_order_id = ? AND status = ?",
			eventID, platform, orderID, model.SaleStatusActive).
		Count(&count).Error
	return count > 0, err
}

// UpdateAmount 乐观更新：只有金额仍为读取时的值才修改
func (r *SaleRepository) UpdateAmount(ctx context.Context, tx *gorm.DB, id int64, expected, amount int64, currency string) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{
		"total_amount": amount,
	}
	if currency != "" {
		updates["currency"] = currency
	}

	result := tx.WithContext(ctx).
		Model(&model.SaleRecord{}).
		Where("id = ? AND status = ? AND total_amount = ?", id, model.SaleStatusActive, expected).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.staleOrMissing(ctx, tx, id)
	}
	return nil
}

// MarkMerged ACTIVE -> MERGED
func (r *SaleRepository) MarkMerged(ctx context.Context, tx *gorm.DB, id, canonicalID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.SaleRecord{}).
		Where("id = ? AND status = ?", id, model.SaleStatusActive).
		Updates(map[string]interface{}{
			"status":      model.SaleStatusMerged,
			"merged_into": canonicalID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.staleOrMissing(ctx, tx, id)
	}
	return nil
}

// SoftDelete 只供人工调整使用
func (r *SaleRepository) SoftDelete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Where("id = ?", id).Delete(&model.SaleRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *SaleRepository) staleOrMissing(ctx context.Context, tx *gorm.DB, id int64) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&model.SaleRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrSaleNotFound
	}
	return ErrSaleStale
}
