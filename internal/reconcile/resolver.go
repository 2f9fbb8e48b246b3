package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/pkg/idgen"
	"ticketrecon/pkg/money"

	"github.com/sirupsen/logrus"
)

var errNotCorrectable = errors.New("差异缺少自动修正所需的数据")

// ResolveSummary 一次处理的结果计数
type ResolveSummary struct {
	AutoCorrected int
	ManualReview  int
	Failed        int // 写入失败转人工的数量，已包含在 ManualReview 中
	Skipped       int // 已有处理结果，跳过
	// Err 运行被取消时中止处理，剩余差异保持未处理
	Err error
}

// Resolver 按严重度从低到高处理差异：影响金额严格小于阈值的自动修正，其余转人工
type Resolver struct {
	store  SalesStore
	audit  AuditLog
	policy config.ReconciliationConfig
	now    func() time.Time
	log    *logrus.Entry
}

func NewResolver(store SalesStore, audit AuditLog, policy config.ReconciliationConfig, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		store:  store,
		audit:  audit,
		policy: policy,
		now:    time.Now,
		log:    log.WithField("component", "Resolver"),
	}
}

// Resolve 已有 Resolution 的差异直接跳过，所以对同一批差异重复调用不会产生新的写入
func (r *Resolver) Resolve(ctx context.Context, ds []*model.ReconciliationDiscrepancy) ResolveSummary {
	var sum ResolveSummary

	ordered := make([]*model.ReconciliationDiscrepancy, len(ds))
	copy(ordered, ds)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if ra, rb := model.SeverityRank(a.Severity), model.SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.Impact != b.Impact {
			return a.Impact < b.Impact
		}
		return a.ID < b.ID
	})

	for _, d := range ordered {
		if err := ctx.Err(); err != nil {
			sum.Err = err
			return sum
		}
		if d.Resolution != "" {
			sum.Skipped++
			continue
		}

		reason, eligible := r.eligible(d)
		if !eligible {
			r.markManual(d, reason)
			sum.ManualReview++
			continue
		}

		c, err := r.buildCorrection(d)
		if err != nil {
			r.markManual(d, err.Error())
			sum.ManualReview++
			continue
		}

		if err := r.store.ApplyCorrection(ctx, c); err != nil {
			if ctx.Err() != nil {
				sum.Err = ctx.Err()
				return sum
			}
			r.log.WithFields(logrus.Fields{
				"discrepancy_id": d.ID,
				"type":           d.Type,
				"order_id":       d.OrderID,
			}).WithError(err).Warn("自动修正写入失败，转人工处理")
			r.markManual(d, fmt.Sprintf("自动修正失败: %v", err))
			r.auditFailure(ctx, d, c, err)
			sum.ManualReview++
			sum.Failed++
			continue
		}

		now := r.now()
		d.Resolution = model.ResolutionAutoCorrected
		d.ResolutionNotes = c.Audit.Description
		d.ResolvedAt = &now
		d.ResolvedBy = "system"
		sum.AutoCorrected++
	}
	return sum
}

// eligible 返回不能自动修正的原因
func (r *Resolver) eligible(d *model.ReconciliationDiscrepancy) (string, bool) {
	switch d.Type {
	case model.DiscrepancyDataInconsistency:
		return "平台不认可的本地销售不会自动删除，需人工确认", false
	case model.DiscrepancyMissingSale, model.DiscrepancyAmountMismatch:
	case model.DiscrepancyDuplicateSale:
		if d.PlatformConfirmed {
			return "重复记录的订单号已被平台确认，可能是真实的多次购买", false
		}
	default:
		return fmt.Sprintf("未知差异类型 %q", d.Type), false
	}
	if d.Impact >= r.policy.AutoCorrectThreshold {
		return fmt.Sprintf("影响金额 %d 不低于自动修正阈值 %d", d.Impact, r.policy.AutoCorrectThreshold), false
	}
	return "", true
}

func (r *Resolver) markManual(d *model.ReconciliationDiscrepancy, notes string) {
	d.Resolution = model.ResolutionManualReview
	d.ResolutionNotes = notes
}

func (r *Resolver) buildCorrection(d *model.ReconciliationDiscrepancy) (*model.Correction, error) {
	correctionNo := idgen.GenerateCorrectionNo()
	entry := &model.AuditLogEntry{
		EventID:  d.EventID,
		Platform: d.Platform,
		ReportID: d.ReportID,
		Action:   model.AuditActionAutoCorrect,
		UserID:   "system",
		Metadata: map[string]interface{}{
			"correction_no":  correctionNo,
			"discrepancy_id": d.ID,
			"type":           d.Type,
			"order_id":       d.OrderID,
			"impact":         d.Impact,
		},
	}

	switch d.Type {
	case model.DiscrepancyMissingSale:
		p := d.PlatformData
		if p == nil || p.OrderID == "" {
			return nil, errNotCorrectable
		}
		sale := &model.SaleRecord{
			EventID:         d.EventID,
			Platform:        d.Platform,
			PlatformOrderID: model.StringPtr(p.OrderID),
			CustomerName:    p.CustomerName,
			CustomerEmail:   p.CustomerEmail,
			TicketType:      p.TicketType,
			Quantity:        p.Quantity,
			TotalAmount:     p.TotalAmount,
			Currency:        money.NormalizeCurrency(p.Currency),
			Status:          model.SaleStatusActive,
			Source:          model.SaleSourceReconciliation,
			PurchasedAt:     p.PurchasedAt,
		}
		if sale.Quantity <= 0 {
			sale.Quantity = 1
		}
		if sale.PurchasedAt.IsZero() {
			sale.PurchasedAt = r.now()
		}
		entry.Description = fmt.Sprintf("补录平台订单 %s，金额 %s", p.OrderID, money.Format(p.TotalAmount, sale.Currency))
		entry.Metadata["after"] = sale.TotalAmount
		return &model.Correction{Kind: model.CorrectionInsertSale, Sale: sale, Audit: entry}, nil

	case model.DiscrepancyAmountMismatch:
		if d.LocalSaleID == nil || d.LocalData == nil || d.PlatformData == nil {
			return nil, errNotCorrectable
		}
		cur := money.NormalizeCurrency(d.PlatformData.Currency)
		if cur == "" {
			cur = money.NormalizeCurrency(d.LocalData.Currency)
		}
		entry.Description = fmt.Sprintf("订单 %s 金额由 %s 修正为平台金额 %s", d.OrderID,
			money.Format(d.LocalData.TotalAmount, d.LocalData.Currency), money.Format(d.PlatformData.TotalAmount, cur))
		entry.Metadata["sale_id"] = *d.LocalSaleID
		entry.Metadata["before"] = d.LocalData.TotalAmount
		entry.Metadata["after"] = d.PlatformData.TotalAmount
		return &model.Correction{
			Kind:           model.CorrectionUpdateAmount,
			SaleID:         *d.LocalSaleID,
			ExpectedAmount: d.LocalData.TotalAmount,
			NewAmount:      d.PlatformData.TotalAmount,
			NewCurrency:    cur,
			Audit:          entry,
		}, nil

	case model.DiscrepancyDuplicateSale:
		if d.LocalSaleID == nil || d.CanonicalSaleID == nil {
			return nil, errNotCorrectable
		}
		entry.Description = fmt.Sprintf("售票记录 %d 判定为 %d 的重复提交，已合并", *d.LocalSaleID, *d.CanonicalSaleID)
		entry.Metadata["sale_id"] = *d.LocalSaleID
		entry.Metadata["canonical_sale_id"] = *d.CanonicalSaleID
		return &model.Correction{
			Kind:        model.CorrectionMergeSale,
			SaleID:      *d.LocalSaleID,
			CanonicalID: *d.CanonicalSaleID,
			Audit:       entry,
		}, nil
	}
	return nil, errNotCorrectable
}

// auditFailure 写入失败本身也要留痕，审计失败只记日志
func (r *Resolver) auditFailure(ctx context.Context, d *model.ReconciliationDiscrepancy, c *model.Correction, cause error) {
	entry := &model.AuditLogEntry{
		EventID:     d.EventID,
		Platform:    d.Platform,
		ReportID:    d.ReportID,
		Action:      model.AuditActionCorrectionFailed,
		Description: fmt.Sprintf("自动修正失败，已转人工: %s", c.Audit.Description),
		UserID:      "system",
		Metadata: map[string]interface{}{
			"discrepancy_id": d.ID,
			"kind":           c.Kind,
			"error":          cause.Error(),
		},
	}
	if err := r.audit.AppendAudit(ctx, entry); err != nil {
		r.log.WithField("discrepancy_id", d.ID).WithError(err).Error("写入修正失败审计日志失败")
	}
}
