package service

import (
	"context"
	"fmt"
	"time"

	"ticketrecon/internal/model"
	"ticketrecon/internal/repository"

	"gorm.io/gorm"
)

type AlertService struct {
	db        *gorm.DB
	alertRepo *repository.AlertRepository
	auditRepo *repository.AuditRepository
	now       func() time.Time
}

func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{
		db:        db,
		alertRepo: repository.NewAlertRepository(db),
		auditRepo: repository.NewAuditRepository(db),
		now:       time.Now,
	}
}

func (s *AlertService) List(ctx context.Context, eventID string, onlyUnacknowledged bool, limit int) ([]*model.ReconciliationAlert, error) {
	return s.alertRepo.List(ctx, eventID, onlyUnacknowledged, clampLimit(limit))
}

// Acknowledge 幂等：重复确认不报错，也不会再写审计日志
func (s *AlertService) Acknowledge(ctx context.Context, id, actor string) (*model.ReconciliationAlert, error) {
	if actor == "" {
		return nil, invalid("缺少确认人")
	}
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Acknowledged {
		return alert, nil
	}

	at := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		changed, err := s.alertRepo.Acknowledge(ctx, tx, id, actor, at)
		if err != nil {
			return fmt.Errorf("确认告警失败: %w", err)
		}
		if !changed {
			return nil
		}
		entry := &model.AuditLogEntry{
			EventID:     alert.EventID,
			Platform:    alert.Platform,
			ReportID:    alert.ReportID,
			Action:      model.AuditActionAlertAcknowledged,
			Description: fmt.Sprintf("告警 %s（%s）已由 %s 确认", alert.ID, alert.Type, actor),
			UserID:      actor,
			Metadata: map[string]interface{}{
				"alert_id": alert.ID,
				"type":     alert.Type,
			},
		}
		return s.auditRepo.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return s.alertRepo.GetByID(ctx, id)
}
