package service

import (
	"context"
	"fmt"
	"time"

	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/model"
	"ticketrecon/internal/repository"
	"ticketrecon/pkg/idgen"
	"ticketrecon/pkg/money"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdjustmentService 人工调整是运营人员写入售票数据的唯一入口
type AdjustmentService struct {
	db             *gorm.DB
	saleRepo       *repository.SaleRepository
	adjustmentRepo *repository.AdjustmentRepository
	auditRepo      *repository.AuditRepository
	now            func() time.Time
}

func NewAdjustmentService(db *gorm.DB) *AdjustmentService {
	return &AdjustmentService{
		db:             db,
		saleRepo:       repository.NewSaleRepository(db),
		adjustmentRepo: repository.NewAdjustmentRepository(db),
		auditRepo:      repository.NewAuditRepository(db),
		now:            time.Now,
	}
}

type AdjustmentRequest struct {
	EventID  string                  `json:"event_id" validate:"required,max=64"`
	Platform string                  `json:"platform" validate:"required,max=32"`
	Type     string                  `json:"type" validate:"required,oneof=add_sale remove_sale update_amount"`
	SaleID   *int64                  `json:"sale_id" validate:"required_unless=Type add_sale"`
	Payload  model.AdjustmentPayload `json:"payload"`
	Reason   string                  `json:"reason" validate:"required,max=512"`
	UserID   string                  `json:"user_id" validate:"required,max=64"`
}

func (s *AdjustmentService) Apply(ctx context.Context, req *AdjustmentRequest) (*model.ManualAdjustment, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Payload.TotalAmount < 0 {
		return nil, invalid("金额不能为负数")
	}
	if req.Type == model.AdjustmentAddSale && money.NormalizeCurrency(req.Payload.Currency) == "" {
		return nil, invalid("新增售票必须指定币种")
	}

	adj := &model.ManualAdjustment{
		AdjustmentNo: idgen.GenerateAdjustmentNo(),
		EventID:      req.EventID,
		Platform:     req.Platform,
		Type:         req.Type,
		SaleID:       req.SaleID,
		Payload:      req.Payload,
		Reason:       req.Reason,
		UserID:       req.UserID,
	}
	entry := &model.AuditLogEntry{
		EventID:  req.EventID,
		Platform: req.Platform,
		Action:   model.AuditActionManualAdjustment,
		UserID:   req.UserID,
		Metadata: map[string]interface{}{
			"adjustment_no": adj.AdjustmentNo,
			"type":          req.Type,
			"reason":        req.Reason,
		},
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		switch req.Type {
		case model.AdjustmentAddSale:
			sale := s.saleFromPayload(req)
			if err := s.saleRepo.Create(ctx, tx, sale); err != nil {
				return fmt.Errorf("新增售票记录失败: %w", err)
			}
			adj.SaleID = model.Int64Ptr(sale.ID)
			entry.Metadata["sale_id"] = sale.ID
			entry.Metadata["after"] = sale.TotalAmount
			entry.Description = fmt.Sprintf("人工新增售票 %d，金额 %s：%s", sale.ID,
				money.Format(sale.TotalAmount, sale.Currency), req.Reason)

		case model.AdjustmentRemoveSale:
			sale, err := s.lockOwnedSale(ctx, tx, req)
			if err != nil {
				return err
			}
			if err := s.saleRepo.SoftDelete(ctx, tx, sale.ID); err != nil {
				return fmt.Errorf("删除售票记录失败: %w", err)
			}
			entry.Metadata["sale_id"] = sale.ID
			entry.Metadata["before"] = sale.TotalAmount
			entry.Description = fmt.Sprintf("人工删除售票 %d，金额 %s：%s", sale.ID,
				money.Format(sale.TotalAmount, sale.Currency), req.Reason)

		case model.AdjustmentUpdateAmount:
			sale, err := s.lockOwnedSale(ctx, tx, req)
			if err != nil {
				return err
			}
			currency := money.NormalizeCurrency(req.Payload.Currency)
			if currency == "" {
				currency = sale.Currency
			}
			if err := s.saleRepo.UpdateAmount(ctx, tx, sale.ID, sale.TotalAmount, req.Payload.TotalAmount, currency); err != nil {
				return fmt.Errorf("修改金额失败: %w", err)
			}
			entry.Metadata["sale_id"] = sale.ID
			entry.Metadata["before"] = sale.TotalAmount
			entry.Metadata["after"] = req.Payload.TotalAmount
			entry.Description = fmt.Sprintf("人工修改售票 %d 金额 %s -> %s：%s", sale.ID,
				money.Format(sale.TotalAmount, sale.Currency), money.Format(req.Payload.TotalAmount, currency), req.Reason)
		}

		if err := s.adjustmentRepo.Create(ctx, tx, adj); err != nil {
			return fmt.Errorf("保存人工调整失败: %w", err)
		}
		entry.Metadata["adjustment_id"] = adj.ID
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("写入审计日志失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Component("AdjustmentService").WithFields(logrus.Fields{
		"adjustment_no": adj.AdjustmentNo,
		"event_id":      adj.EventID,
		"type":          adj.Type,
		"user_id":       adj.UserID,
	}).Info("人工调整已生效")
	return adj, nil
}

func (s *AdjustmentService) ListByEvent(ctx context.Context, eventID string, limit int) ([]*model.ManualAdjustment, error) {
	return s.adjustmentRepo.ListByEvent(ctx, eventID, clampLimit(limit))
}

func (s *AdjustmentService) saleFromPayload(req *AdjustmentRequest) *model.SaleRecord {
	p := req.Payload
	sale := &model.SaleRecord{
		EventID:       req.EventID,
		Platform:      req.Platform,
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		TicketType:    p.TicketType,
		Quantity:      p.Quantity,
		TotalAmount:   p.TotalAmount,
		Currency:      money.NormalizeCurrency(p.Currency),
		Status:        model.SaleStatusActive,
		Source:        model.SaleSourceManual,
		PurchasedAt:   s.now(),
	}
	if p.PlatformOrderID != "" {
		sale.PlatformOrderID = model.StringPtr(p.PlatformOrderID)
	}
	if sale.Quantity <= 0 {
		sale.Quantity = 1
	}
	if p.PurchasedAt != nil {
		sale.PurchasedAt = *p.PurchasedAt
	}
	return sale
}

// lockOwnedSale 目标记录必须属于请求的活动和平台
func (s *AdjustmentService) lockOwnedSale(ctx context.Context, tx *gorm.DB, req *AdjustmentRequest) (*model.SaleRecord, error) {
	sale, err := s.saleRepo.GetByIDForUpdate(ctx, tx, *req.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.EventID != req.EventID || sale.Platform != req.Platform {
		return nil, repository.ErrSaleNotFound
	}
	if sale.Status != model.SaleStatusActive {
		return nil, fmt.Errorf("%w: 记录已合并", repository.ErrSaleStale)
	}
	return sale, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}
