package service

import (
	"context"
	"errors"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/repository"

	"gorm.io/gorm"
)

var ErrNoLinkedPlatforms = errors.New("活动没有关联任何已启用的票务平台")

// ReconcileService 对账的触发与查询入口，HTTP、CLI 和定时任务共用
type ReconcileService struct {
	orch       *reconcile.Orchestrator
	policy     *config.PolicyStore
	reportRepo *repository.ReportRepository
	discRepo   *repository.DiscrepancyRepository
	auditRepo  *repository.AuditRepository
	linkRepo   *repository.TicketPlatformRepository
}

func NewReconcileService(db *gorm.DB, orch *reconcile.Orchestrator, policy *config.PolicyStore) *ReconcileService {
	return &ReconcileService{
		orch:       orch,
		policy:     policy,
		reportRepo: repository.NewReportRepository(db),
		discRepo:   repository.NewDiscrepancyRepository(db),
		auditRepo:  repository.NewAuditRepository(db),
		linkRepo:   repository.NewTicketPlatformRepository(db),
	}
}

// Run 对单个 (活动, 平台) 立即对账
func (s *ReconcileService) Run(ctx context.Context, eventID, platform string) (*model.ReconciliationReport, error) {
	if eventID == "" || platform == "" {
		return nil, invalid("event_id 和 platform 不能为空")
	}
	return s.orch.Run(ctx, eventID, platform)
}

// RunEvent 对活动关联且已启用的全部平台并发对账
func (s *ReconcileService) RunEvent(ctx context.Context, eventID string) ([]reconcile.RunResult, error) {
	links, err := s.linkRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	policy := s.policy.Snapshot()
	var platforms []string
	for _, l := range links {
		if policy.PlatformEnabled(l.Platform) {
			platforms = append(platforms, l.Platform)
		}
	}
	if len(platforms) == 0 {
		return nil, ErrNoLinkedPlatforms
	}
	return s.orch.RunEvent(ctx, eventID, platforms), nil
}

type LinkRequest struct {
	EventID         string `json:"event_id" validate:"required,max=64"`
	Platform        string `json:"platform" validate:"required,max=32"`
	ExternalEventID string `json:"external_event_id" validate:"required,max=128"`
	IsPrimary       bool   `json:"is_primary"`
}

func (s *ReconcileService) LinkPlatform(ctx context.Context, req *LinkRequest) (*model.TicketPlatform, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	link := &model.TicketPlatform{
		EventID:         req.EventID,
		Platform:        req.Platform,
		ExternalEventID: req.ExternalEventID,
		IsPrimary:       req.IsPrimary,
	}
	if err := s.linkRepo.Upsert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *ReconcileService) Links(ctx context.Context, eventID string) ([]*model.TicketPlatform, error) {
	return s.linkRepo.ListByEvent(ctx, eventID)
}

func (s *ReconcileService) Report(ctx context.Context, id string) (*model.ReconciliationReport, error) {
	return s.reportRepo.GetByID(ctx, id, true)
}

func (s *ReconcileService) Reports(ctx context.Context, eventID string, limit, offset int) ([]*model.ReconciliationReport, error) {
	if offset < 0 {
		offset = 0
	}
	return s.reportRepo.ListByEvent(ctx, eventID, clampLimit(limit), offset)
}

// Stats eventID 为空时统计全部活动
func (s *ReconcileService) Stats(ctx context.Context, eventID string, limit int) (*reconcile.Stats, error) {
	reports, err := s.reportRepo.ListByEvent(ctx, eventID, clampLimit(limit), 0)
	if err != nil {
		return nil, err
	}
	return reconcile.ComputeStats(reports), nil
}

func (s *ReconcileService) AuditTrail(ctx context.Context, eventID string, limit int) ([]*model.AuditLogEntry, error) {
	return s.auditRepo.ListByEvent(ctx, eventID, clampLimit(limit))
}

func (s *ReconcileService) Policy() config.ReconciliationConfig {
	return s.policy.Snapshot()
}

// UpdatePolicy 安装新版本策略，进行中的对账不受影响
func (s *ReconcileService) UpdatePolicy(next config.ReconciliationConfig) (config.ReconciliationConfig, error) {
	for _, p := range next.EnabledPlatforms {
		if _, ok := s.orch.Adapters.Lookup(p); !ok {
			return config.ReconciliationConfig{}, invalid("enabled_platforms 包含未配置的票务平台: %s", p)
		}
	}
	updated, err := s.policy.Update(next)
	if err != nil {
		return config.ReconciliationConfig{}, invalid("%v", err)
	}
	return updated, nil
}
