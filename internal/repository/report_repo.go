package repository

import (
	"context"
	"errors"
	"time"

	"ticketrecon/internal/model"

	"gorm.io/gorm"
)

var (
	ErrReportNotFound      = errors.New("对账报告不存在")
	ErrReportStatusInvalid = errors.New("对账报告状态不合法")
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, tx *gorm.DB, report *model.ReconciliationReport) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Omit("Discrepancies").Create(report).Error
}

// Finish running -> completed/failed，写入统计结果。条件更新保证只迁移一次。
func (r *ReportRepository) Finish(ctx context.Context, tx *gorm.DB, report *model.ReconciliationReport, toStatus string) error {
	if !model.CanReportTransitionTo(model.ReportStatusRunning, toStatus) {
		return ErrReportStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.ReconciliationReport{}).
		Where("id = ? AND status = ?", report.ID, model.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":                 toStatus,
			"end_time":               report.EndTime,
			"total_local_sales":      report.TotalLocalSales,
			"total_platform_sales":   report.TotalPlatformSales,
			"total_local_revenue":    report.TotalLocalRevenue,
			"total_platform_revenue": report.TotalPlatformRevenue,
			"discrepancies_found":    report.DiscrepanciesFound,
			"discrepancies_resolved": report.DiscrepanciesResolved,
			"sync_health":            report.SyncHealth,
			"error_message":          report.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReportStatusInvalid
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string, withDetails bool) (*model.ReconciliationReport, error) {
	var report model.ReconciliationReport
	q := r.db.WithContext(ctx)
	if withDetails {
		q = q.Preload("Discrepancies", func(db *gorm.DB) *gorm.DB {
			return db.Order("detected_at ASC, id ASC")
		})
	}
	err := q.Where("id = ?", id).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

// ListByEvent 新的在前；eventID 为空时查全部
func (r *ReportRepository) ListByEvent(ctx context.Context, eventID string, limit, offset int) ([]*model.ReconciliationReport, error) {
	var reports []*model.ReconciliationReport
	q := r.db.WithContext(ctx)
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}
	err := q.Order("start_time DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error
	return reports, err
}

// ListStaleRunning 开始时间早于 before 仍在 running 的报告
func (r *ReportRepository) ListStaleRunning(ctx context.Context, before time.Time, limit int) ([]*model.ReconciliationReport, error) {
	var reports []*model.ReconciliationReport
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time < ?", model.ReportStatusRunning, before).
		Order("start_time ASC").
		Limit(limit).
		Find(&reports).Error
	return reports, err
}

// IncrementResolved 已解决数加一，不会超过发现数
func (r *ReportRepository) IncrementResolved(ctx context.Context, tx *gorm.DB, reportID string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.ReconciliationReport{}).
		Where("id = ? AND discrepancies_resolved < discrepancies_found", reportID).
		UpdateColumn("discrepancies_resolved", gorm.Expr("discrepancies_resolved + 1")).Error
}

// DecrementResolved 已解决的差异被重新打开时使用
func (r *ReportRepository) DecrementResolved(ctx context.Context, tx *gorm.DB, reportID string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.ReconciliationReport{}).
		Where("id = ? AND discrepancies_resolved > 0", reportID).
		UpdateColumn("discrepancies_resolved", gorm.Expr("discrepancies_resolved - 1")).Error
}
