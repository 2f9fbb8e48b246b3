// Package reconcile 票务销售对账引擎。
//
// 一次对账针对一个 (活动, 平台)：拉取本地与平台的销售记录，匹配、查重、
// 分级、在阈值内自动修正，其余转人工，并在超过告警阈值时告警。
package reconcile

import (
	"context"
	"errors"

	"ticketrecon/internal/config"
	"ticketrecon/internal/model"
	"ticketrecon/internal/platform"
)

var (
	ErrRunInProgress    = errors.New("该活动该平台已有对账在运行")
	ErrPlatformDisabled = errors.New("票务平台未启用对账")
	ErrLeaseLost        = errors.New("对账租约续约失败，运行已中止")
)

// SalesStore 本地售票记录存储
type SalesStore interface {
	// ListSales 返回有效（未合并、未删除）的售票记录
	ListSales(ctx context.Context, eventID, platform string) ([]*model.SaleRecord, error)
	// ApplyCorrection 写入修正并追加审计日志，两者原子提交
	ApplyCorrection(ctx context.Context, c *model.Correction) error
}

// ReportStore 对账报告存储
type ReportStore interface {
	CreateReport(ctx context.Context, report *model.ReconciliationReport) error
	// CompleteReport 保存结果与全部差异，running -> completed
	CompleteReport(ctx context.Context, report *model.ReconciliationReport) error
	// FailReport running -> failed
	FailReport(ctx context.Context, report *model.ReconciliationReport) error
}

type AuditLog interface {
	AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error
}

type AlertSink interface {
	RaiseAlert(ctx context.Context, alert *model.ReconciliationAlert) error
}

type AdapterRegistry interface {
	Lookup(platform string) (platform.Adapter, bool)
}

type PolicySource interface {
	Snapshot() config.ReconciliationConfig
}
