package reconcile

import (
	"fmt"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/pkg/money"

	"github.com/shopspring/decimal"
)

var (
	healthyBelow = decimal.RequireFromString("0.01")
	warningBelow = decimal.RequireFromString("0.05")
)

// SyncHealth 差异数 / max(本地笔数, 平台笔数)：< 1% healthy，< 5% warning，其余 critical。
// 两边都没有记录时，没有差异即 healthy。
func SyncHealth(found, localCount, platformCount int) string {
	denom := localCount
	if platformCount > denom {
		denom = platformCount
	}
	if denom == 0 {
		if found == 0 {
			return model.SyncHealthHealthy
		}
		return model.SyncHealthCritical
	}
	ratio := money.Ratio(int64(found), int64(denom))
	switch {
	case ratio.LessThan(healthyBelow):
		return model.SyncHealthHealthy
	case ratio.LessThan(warningBelow):
		return model.SyncHealthWarning
	default:
		return model.SyncHealthCritical
	}
}

// EvaluateAlerts 报告完成后按告警阈值评估。
// 转人工的差异数量或金额合计超过阈值时，产生且只产生一条 critical_discrepancies。
func EvaluateAlerts(report *model.ReconciliationReport, ds []*model.ReconciliationDiscrepancy,
	policy config.ReconciliationConfig, newID func() string) []*model.ReconciliationAlert {

	var (
		pending       int
		pendingImpact int64
		severity      = model.SeverityHigh
		inconsistent  int
		worstIncons   = model.SeverityLow
	)
	for _, d := range ds {
		if d.Resolution == model.ResolutionManualReview {
			pending++
			pendingImpact += d.Impact
			severity = model.MaxSeverity(severity, d.Severity)
		}
		if d.Type == model.DiscrepancyDataInconsistency &&
			model.SeverityRank(d.Severity) >= model.SeverityRank(model.SeverityHigh) {
			inconsistent++
			worstIncons = model.MaxSeverity(worstIncons, d.Severity)
		}
	}

	var alerts []*model.ReconciliationAlert
	if pending > policy.AlertThreshold.Count || pendingImpact > policy.AlertThreshold.Amount {
		alerts = append(alerts, &model.ReconciliationAlert{
			ID:       newID(),
			ReportID: report.ID,
			EventID:  report.EventID,
			Platform: report.Platform,
			Type:     model.AlertTypeCriticalDiscrepancies,
			Severity: severity,
			Message: fmt.Sprintf("活动 %s 在 %s 上有 %d 条差异待人工处理，涉及金额 %d（阈值 %d 条 / %d）",
				report.EventID, report.Platform, pending, pendingImpact,
				policy.AlertThreshold.Count, policy.AlertThreshold.Amount),
		})
	}
	if inconsistent > 0 {
		alerts = append(alerts, &model.ReconciliationAlert{
			ID:       newID(),
			ReportID: report.ID,
			EventID:  report.EventID,
			Platform: report.Platform,
			Type:     model.AlertTypeDataInconsistency,
			Severity: worstIncons,
			Message: fmt.Sprintf("活动 %s 有 %d 笔本地销售未被 %s 平台确认",
				report.EventID, inconsistent, report.Platform),
		})
	}
	return alerts
}

// SyncFailureAlert 对账失败时的告警
func SyncFailureAlert(report *model.ReconciliationReport, cause error, id string, at time.Time) *model.ReconciliationAlert {
	return &model.ReconciliationAlert{
		ID:        id,
		ReportID:  report.ID,
		EventID:   report.EventID,
		Platform:  report.Platform,
		Type:      model.AlertTypeSyncFailure,
		Severity:  model.SeverityCritical,
		Message:   fmt.Sprintf("活动 %s 在 %s 上的对账失败: %v", report.EventID, report.Platform, cause),
		CreatedAt: at,
	}
}
