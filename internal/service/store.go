package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/internal/repository"

	"gorm.io/gorm"
)

const (
	EventTypeAlertRaised     = "alert_raised"
	EventTypeReportCompleted = "report_completed"
	EventTypeReportFailed    = "report_failed"
)

// EngineStore 对账引擎的持久化端口实现。
// 每次修正与其审计日志、每条告警与其出箱消息分别在同一事务内提交。
type EngineStore struct {
	db         *gorm.DB
	topics     config.TopicConfig
	saleRepo   *repository.SaleRepository
	reportRepo *repository.ReportRepository
	discRepo   *repository.DiscrepancyRepository
	alertRepo  *repository.AlertRepository
	auditRepo  *repository.AuditRepository
	outboxRepo *repository.OutboxRepository
}

func NewEngineStore(db *gorm.DB, topics config.TopicConfig) *EngineStore {
	return &EngineStore{
		db:         db,
		topics:     topics,
		saleRepo:   repository.NewSaleRepository(db),
		reportRepo: repository.NewReportRepository(db),
		discRepo:   repository.NewDiscrepancyRepository(db),
		alertRepo:  repository.NewAlertRepository(db),
		auditRepo:  repository.NewAuditRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

func (s *EngineStore) ListSales(ctx context.Context, eventID, platform string) ([]*model.SaleRecord, error) {
	return s.saleRepo.ListActive(ctx, eventID, platform)
}

func (s *EngineStore) ApplyCorrection(ctx context.Context, c *model.Correction) error {
	if c.Audit == nil {
		return fmt.Errorf("修正缺少审计日志: %s", c.Kind)
	}
	if c.Audit.Metadata == nil {
		c.Audit.Metadata = map[string]interface{}{}
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		switch c.Kind {
		case model.CorrectionInsertSale:
			// 同一订单号已被补录时不重复插入
			exists, err := s.saleRepo.ExistsByOrderID(ctx, tx, c.Sale.EventID, c.Sale.Platform, c.Sale.OrderID())
			if err != nil {
				return fmt.Errorf("查询售票记录失败: %w", err)
			}
			if exists {
				return repository.ErrSaleStale
			}
			if err := s.saleRepo.Create(ctx, tx, c.Sale); err != nil {
				return fmt.Errorf("补录售票记录失败: %w", err)
			}
			c.Audit.Metadata["sale_id"] = c.Sale.ID

		case model.CorrectionUpdateAmount:
			if err := s.saleRepo.UpdateAmount(ctx, tx, c.SaleID, c.ExpectedAmount, c.NewAmount, c.NewCurrency); err != nil {
				return fmt.Errorf("修正金额失败: %w", err)
			}

		case model.CorrectionMergeSale:
			if err := s.saleRepo.MarkMerged(ctx, tx, c.SaleID, c.CanonicalID); err != nil {
				return fmt.Errorf("合并重复记录失败: %w", err)
			}

		default:
			return fmt.Errorf("未知的修正类型: %s", c.Kind)
		}

		if err := s.auditRepo.Create(ctx, tx, c.Audit); err != nil {
			return fmt.Errorf("写入审计日志失败: %w", err)
		}
		return nil
	})
}

func (s *EngineStore) CreateReport(ctx context.Context, report *model.ReconciliationReport) error {
	return s.reportRepo.Create(ctx, nil, report)
}

func (s *EngineStore) CompleteReport(ctx context.Context, report *model.ReconciliationReport) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.reportRepo.Finish(ctx, tx, report, model.ReportStatusCompleted); err != nil {
			return fmt.Errorf("更新报告状态失败: %w", err)
		}
		if err := s.discRepo.CreateBatch(ctx, tx, report.Discrepancies); err != nil {
			return fmt.Errorf("保存差异记录失败: %w", err)
		}
		return s.writeReportEvent(ctx, tx, report, EventTypeReportCompleted)
	})
}

func (s *EngineStore) FailReport(ctx context.Context, report *model.ReconciliationReport) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.reportRepo.Finish(ctx, tx, report, model.ReportStatusFailed); err != nil {
			return fmt.Errorf("更新报告状态失败: %w", err)
		}
		return s.writeReportEvent(ctx, tx, report, EventTypeReportFailed)
	})
}

func (s *EngineStore) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	return s.auditRepo.Create(ctx, nil, entry)
}

func (s *EngineStore) RaiseAlert(ctx context.Context, alert *model.ReconciliationAlert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.alertRepo.Create(ctx, tx, alert); err != nil {
			return fmt.Errorf("保存告警失败: %w", err)
		}
		return s.writeOutbox(ctx, tx, s.topics.Alert, alert.EventID, EventTypeAlertRaised, alert)
	})
}

func (s *EngineStore) writeReportEvent(ctx context.Context, tx *gorm.DB, report *model.ReconciliationReport, eventType string) error {
	summary := map[string]interface{}{
		"report_id":              report.ID,
		"event_id":               report.EventID,
		"platform":               report.Platform,
		"status":                 report.Status,
		"config_version":         report.ConfigVersion,
		"discrepancies_found":    report.DiscrepanciesFound,
		"discrepancies_resolved": report.DiscrepanciesResolved,
		"sync_health":            report.SyncHealth,
		"error_message":          report.ErrorMessage,
	}
	if report.EndTime != nil {
		summary["end_time"] = report.EndTime.Format(time.RFC3339)
	}
	return s.writeOutbox(ctx, tx, s.topics.Report, report.EventID, eventType, summary)
}

func (s *EngineStore) writeOutbox(ctx context.Context, tx *gorm.DB, topic, key, eventType string, payload interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		EventType:  eventType,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
