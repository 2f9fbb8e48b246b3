package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/model"
	"ticketrecon/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrDiscrepancyFinal = errors.New("已自动修正的差异不能再人工处理")

type DiscrepancyService struct {
	db         *gorm.DB
	discRepo   *repository.DiscrepancyRepository
	reportRepo *repository.ReportRepository
	auditRepo  *repository.AuditRepository
	now        func() time.Time
}

func NewDiscrepancyService(db *gorm.DB) *DiscrepancyService {
	return &DiscrepancyService{
		db:         db,
		discRepo:   repository.NewDiscrepancyRepository(db),
		reportRepo: repository.NewReportRepository(db),
		auditRepo:  repository.NewAuditRepository(db),
		now:        time.Now,
	}
}

type ResolveRequest struct {
	DiscrepancyID string `json:"-" validate:"required"`
	Resolution    string `json:"resolution" validate:"required,oneof=ignored platform_updated manual_review"`
	Notes         string `json:"notes" validate:"max=2000"`
	UserID        string `json:"user_id" validate:"required,max=64"`
}

// Resolve 运营人员处理差异。转为已解决时报告的已解决数加一，重新打开时减一；
// 与当前结果相同的请求不产生任何写入。
func (s *DiscrepancyService) Resolve(ctx context.Context, req *ResolveRequest) (*model.ReconciliationDiscrepancy, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	d, err := s.discRepo.GetByID(ctx, req.DiscrepancyID)
	if err != nil {
		return nil, err
	}
	if d.Resolution == model.ResolutionAutoCorrected {
		return nil, ErrDiscrepancyFinal
	}
	if d.Resolution == req.Resolution {
		return d, nil
	}

	wasResolved := model.IsResolvedOutcome(d.Resolution)
	nowResolved := model.IsResolvedOutcome(req.Resolution)
	at := s.now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.discRepo.UpdateResolution(ctx, tx, d.ID, d.Resolution, req.Resolution, req.Notes, req.UserID, at); err != nil {
			return err
		}
		switch {
		case !wasResolved && nowResolved:
			if err := s.reportRepo.IncrementResolved(ctx, tx, d.ReportID); err != nil {
				return fmt.Errorf("更新报告已解决数失败: %w", err)
			}
		case wasResolved && !nowResolved:
			if err := s.reportRepo.DecrementResolved(ctx, tx, d.ReportID); err != nil {
				return fmt.Errorf("更新报告已解决数失败: %w", err)
			}
		}

		entry := &model.AuditLogEntry{
			EventID:     d.EventID,
			Platform:    d.Platform,
			ReportID:    d.ReportID,
			Action:      model.AuditActionManualResolution,
			Description: fmt.Sprintf("差异 %s（%s）由 %s 改为 %s", d.ID, d.Type, d.Resolution, req.Resolution),
			UserID:      req.UserID,
			Metadata: map[string]interface{}{
				"discrepancy_id": d.ID,
				"from":           d.Resolution,
				"to":             req.Resolution,
				"notes":          req.Notes,
			},
		}
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("写入审计日志失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Component("DiscrepancyService").WithFields(logrus.Fields{
		"discrepancy_id": d.ID,
		"from":           d.Resolution,
		"to":             req.Resolution,
		"user_id":        req.UserID,
	}).Info("差异已人工处理")

	return s.discRepo.GetByID(ctx, d.ID)
}

func (s *DiscrepancyService) PendingReview(ctx context.Context, eventID string, limit int) ([]*model.ReconciliationDiscrepancy, error) {
	return s.discRepo.ListPendingReview(ctx, eventID, clampLimit(limit))
}
