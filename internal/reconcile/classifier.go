package reconcile

import (
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// 差异分级规则
// ============================================================================
//
// missing_sale / data_inconsistency：按单笔金额占活动总收入的比例
//   >= 25% critical, >= 10% high, >= 2% medium, 其余 low
// amount_mismatch：相对差额与绝对差额取较严重者
//   相对 >= 50% critical, >= 20% high, >= 5% medium
//   绝对 >= 50000 critical, >= 10000 high, >= 2000 medium（最小货币单位）
//   币种不一致至少 high
// duplicate_sale：默认 medium，重复记录已开票/已结算时 high
// 同类差异数量超过 escalation_count 时，该类全部至少 high
//
// ============================================================================

type tier struct {
	min      decimal.Decimal
	severity string
}

var (
	shareTiers = []tier{
		{decimal.RequireFromString("0.25"), model.SeverityCritical},
		{decimal.RequireFromString("0.10"), model.SeverityHigh},
		{decimal.RequireFromString("0.02"), model.SeverityMedium},
	}
	relativeTiers = []tier{
		{decimal.RequireFromString("0.5"), model.SeverityCritical},
		{decimal.RequireFromString("0.2"), model.SeverityHigh},
		{decimal.RequireFromString("0.05"), model.SeverityMedium},
	}
	absoluteTiers = []tier{
		{decimal.NewFromInt(50000), model.SeverityCritical},
		{decimal.NewFromInt(10000), model.SeverityHigh},
		{decimal.NewFromInt(2000), model.SeverityMedium},
	}
)

func pickTier(v decimal.Decimal, tiers []tier) string {
	for _, t := range tiers {
		if v.GreaterThanOrEqual(t.min) {
			return t.severity
		}
	}
	return model.SeverityLow
}

// Candidates 匹配与查重的输出
type Candidates struct {
	Match      *MatchResult
	Duplicates []DuplicateCandidate
}

type Classifier struct {
	policy config.ReconciliationConfig
	now    func() time.Time
	newID  func() string
}

func NewClassifier(policy config.ReconciliationConfig) *Classifier {
	return &Classifier{policy: policy, now: time.Now, newID: uuid.NewString}
}

// Classify 生成完整的差异记录，Resolution 留空交给 Resolver
func (c *Classifier) Classify(report *model.ReconciliationReport, in Candidates) []*model.ReconciliationDiscrepancy {
	detectedAt := c.now()
	revenue := report.TotalPlatformRevenue
	if report.TotalLocalRevenue > revenue {
		revenue = report.TotalLocalRevenue
	}

	base := func(typ string) *model.ReconciliationDiscrepancy {
		return &model.ReconciliationDiscrepancy{
			ID:         c.newID(),
			ReportID:   report.ID,
			EventID:    report.EventID,
			Platform:   report.Platform,
			Type:       typ,
			DetectedAt: detectedAt,
		}
	}

	var out []*model.ReconciliationDiscrepancy

	if m := in.Match; m != nil {
		for _, p := range m.Missing {
			d := base(model.DiscrepancyMissingSale)
			d.OrderID = p.OrderID
			d.PlatformData = p
			d.Impact = money.Abs(p.TotalAmount)
			d.Severity = pickTier(money.Ratio(d.Impact, revenue), shareTiers)
			out = append(out, d)
		}

		for _, mm := range m.Mismatched {
			d := base(model.DiscrepancyAmountMismatch)
			d.OrderID = mm.Platform.OrderID
			d.LocalSaleID = model.Int64Ptr(mm.Local.ID)
			d.LocalData = mm.Local
			d.PlatformData = mm.Platform
			diff := mm.Difference
			d.Difference = &diff
			d.Impact = mm.Impact
			d.Severity = c.mismatchSeverity(mm)
			out = append(out, d)
		}

		duplicated := make(map[int64]bool, len(in.Duplicates))
		for _, dc := range in.Duplicates {
			duplicated[dc.Duplicate.ID] = true
		}
		for _, s := range m.Unrecognized {
			// 重复提交同一订单号时由 duplicate_sale 覆盖，避免一条记录两个差异
			if duplicated[s.ID] {
				continue
			}
			d := base(model.DiscrepancyDataInconsistency)
			d.OrderID = s.OrderID()
			d.LocalSaleID = model.Int64Ptr(s.ID)
			d.LocalData = s
			d.Impact = money.Abs(s.TotalAmount)
			d.Severity = pickTier(money.Ratio(d.Impact, revenue), shareTiers)
			out = append(out, d)
		}
	}

	var confirmed map[int64]bool
	if in.Match != nil {
		confirmed = in.Match.MatchedLocalIDs()
	}
	for _, dc := range in.Duplicates {
		d := base(model.DiscrepancyDuplicateSale)
		d.OrderID = dc.Duplicate.OrderID()
		d.LocalSaleID = model.Int64Ptr(dc.Duplicate.ID)
		d.CanonicalSaleID = model.Int64Ptr(dc.Canonical.ID)
		d.LocalData = dc.Duplicate
		d.PlatformConfirmed = confirmed[dc.Duplicate.ID]
		d.Impact = money.Abs(dc.Duplicate.TotalAmount)
		d.Severity = model.SeverityMedium
		if dc.Duplicate.Invoiced {
			d.Severity = model.SeverityHigh
		}
		out = append(out, d)
	}

	c.escalate(out)
	return out
}

func (c *Classifier) mismatchSeverity(mm Mismatch) string {
	if mm.Difference.Field == "currency" {
		return model.MaxSeverity(model.SeverityHigh, pickTier(decimal.NewFromInt(mm.Impact), absoluteTiers))
	}
	denom := mm.Platform.TotalAmount
	if mm.Local.TotalAmount > denom {
		denom = mm.Local.TotalAmount
	}
	if denom <= 0 {
		denom = 1
	}
	rel := pickTier(money.Ratio(mm.Impact, denom), relativeTiers)
	abs := pickTier(decimal.NewFromInt(mm.Impact), absoluteTiers)
	return model.MaxSeverity(rel, abs)
}

func (c *Classifier) escalate(ds []*model.ReconciliationDiscrepancy) {
	if c.policy.EscalationCount <= 0 {
		return
	}
	counts := make(map[string]int)
	for _, d := range ds {
		counts[d.Type]++
	}
	for _, d := range ds {
		if counts[d.Type] > c.policy.EscalationCount {
			d.Severity = model.MaxSeverity(d.Severity, model.SeverityHigh)
		}
	}
}
