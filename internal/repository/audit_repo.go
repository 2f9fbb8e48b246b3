package repository

import (
	"context"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
)

// AuditRepository 审计日志只提供追加和查询
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.AuditLogEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) ListByEvent(ctx context.Context, eventID string, limit int) ([]*model.AuditLogEntry, error) {
	var entries []*model.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) ListByReport(ctx context.Context, reportID string) ([]*model.AuditLogEntry, error) {
	var entries []*model.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
