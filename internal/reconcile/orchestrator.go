package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketrecon/internal/infrastructure/lock"
	"ticketrecon/internal/model"
	"ticketrecon/internal/platform"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Deps 对账编排依赖的外部协作者
type Deps struct {
	Sales    SalesStore
	Reports  ReportStore
	Audit    AuditLog
	Alerts   AlertSink
	Adapters AdapterRegistry
	Policy   PolicySource
	Locker   lock.Locker
	Logger   *logrus.Entry
}

// Orchestrator 驱动一次 (活动, 平台) 的完整对账：
// 匹配 -> 查重 -> 分级 -> 处理 -> 告警 -> 报告。同一 key 同时至多一次运行。
type Orchestrator struct {
	Deps
	now   func() time.Time
	newID func() string
	// 续约间隔，为 0 时取租约时长的 1/3
	heartbeat time.Duration
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	deps.Logger = deps.Logger.WithField("component", "Orchestrator")
	return &Orchestrator{Deps: deps, now: time.Now, newID: uuid.NewString}
}

// Run 对账失败时同时返回 failed 状态的报告和错误；
// 同一 key 已在运行时返回 ErrRunInProgress，不创建报告。
// 调用方取消 ctx 或租约续约失败都会中止运行，报告仍会被置为 failed。
func (o *Orchestrator) Run(ctx context.Context, eventID, platformName string) (*model.ReconciliationReport, error) {
	policy := o.Policy.Snapshot()
	if !policy.PlatformEnabled(platformName) {
		return nil, fmt.Errorf("%w: %s", ErrPlatformDisabled, platformName)
	}
	adapter, ok := o.Adapters.Lookup(platformName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnknownPlatform, platformName)
	}

	key := model.RunKey(eventID, platformName)
	lease, err := o.Locker.TryAcquire(ctx, key, policy.RunLeaseTimeout())
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
		}
		return nil, fmt.Errorf("获取对账锁失败: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			o.Logger.WithField("key", key).WithError(err).Warn("释放对账锁失败")
		}
	}()
	runCtx, stopHeartbeat := o.keepAlive(ctx, lease, policy.RunLeaseTimeout())
	defer stopHeartbeat()

	report := &model.ReconciliationReport{
		ID:            o.newID(),
		EventID:       eventID,
		Platform:      platformName,
		ConfigVersion: policy.Version,
		Status:        model.ReportStatusRunning,
		StartTime:     o.now(),
	}
	if err := o.Reports.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("创建对账报告失败: %w", err)
	}
	log := o.Logger.WithFields(logrus.Fields{
		"report_id":      report.ID,
		"event_id":       eventID,
		"platform":       platformName,
		"config_version": policy.Version,
	})
	log.Info("对账开始")

	local, err := o.Sales.ListSales(runCtx, eventID, platformName)
	if err != nil {
		return o.fail(ctx, log, report, fmt.Errorf("读取本地售票记录失败: %w", interrupted(runCtx, err)))
	}

	fetchCtx, cancel := context.WithTimeout(runCtx, policy.AdapterTimeout())
	remote, err := adapter.FetchSales(fetchCtx, eventID)
	cancel()
	if err != nil {
		if runCtx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, platform.ErrAdapterTimeout) {
			err = fmt.Errorf("%w: %v", platform.ErrAdapterTimeout, err)
		}
		return o.fail(ctx, log, report, fmt.Errorf("拉取平台销售数据失败: %w", interrupted(runCtx, err)))
	}
	remote = UniquePlatformSales(remote)

	report.TotalLocalSales = len(local)
	for _, s := range local {
		report.TotalLocalRevenue += s.TotalAmount
	}
	report.TotalPlatformSales = len(remote)
	for _, p := range remote {
		report.TotalPlatformRevenue += p.TotalAmount
	}

	match := Match(local, remote, policy.AmountTolerance)
	dups := DetectDuplicates(local, policy.DuplicateWindow())

	classifier := NewClassifier(policy)
	classifier.now, classifier.newID = o.now, o.newID
	ds := classifier.Classify(report, Candidates{Match: match, Duplicates: dups})

	resolver := NewResolver(o.Sales, o.Audit, policy, log)
	resolver.now = o.now
	sum := resolver.Resolve(runCtx, ds)
	if sum.Err != nil {
		return o.fail(ctx, log, report, fmt.Errorf("处理差异时中止: %w", interrupted(runCtx, sum.Err)))
	}
	// 租约已被接管时不再写入结果
	if cause := context.Cause(runCtx); errors.Is(cause, ErrLeaseLost) {
		return o.fail(ctx, log, report, cause)
	}

	report.Discrepancies = ds
	report.DiscrepanciesFound = len(ds)
	report.DiscrepanciesResolved = 0
	for _, d := range ds {
		if model.IsResolvedOutcome(d.Resolution) {
			report.DiscrepanciesResolved++
		}
	}
	report.SyncHealth = SyncHealth(report.DiscrepanciesFound, report.TotalLocalSales, report.TotalPlatformSales)
	end := o.now()
	report.EndTime = &end
	report.Status = model.ReportStatusCompleted

	done := context.WithoutCancel(ctx)
	if err := o.Reports.CompleteReport(done, report); err != nil {
		return o.fail(ctx, log, report, fmt.Errorf("保存对账结果失败: %w", err))
	}

	log.WithFields(logrus.Fields{
		"local_sales":    report.TotalLocalSales,
		"platform_sales": report.TotalPlatformSales,
		"found":          report.DiscrepanciesFound,
		"auto_corrected": sum.AutoCorrected,
		"manual_review":  sum.ManualReview,
		"write_failed":   sum.Failed,
		"sync_health":    report.SyncHealth,
	}).Info("对账完成")

	for _, a := range EvaluateAlerts(report, ds, policy, o.newID) {
		a.CreatedAt = end
		o.raise(done, log, a)
	}
	return report, nil
}

// fail 报告置为 failed 并发出 sync_failure 告警，不会让报告停留在 running。
// 收尾写入不随 ctx 取消。
func (o *Orchestrator) fail(ctx context.Context, log *logrus.Entry, report *model.ReconciliationReport, cause error) (*model.ReconciliationReport, error) {
	log.WithError(cause).Error("对账失败")
	ctx = context.WithoutCancel(ctx)

	end := o.now()
	report.Status = model.ReportStatusFailed
	report.ErrorMessage = cause.Error()
	report.EndTime = &end
	report.Discrepancies = nil
	report.DiscrepanciesFound = 0
	report.DiscrepanciesResolved = 0
	if err := o.Reports.FailReport(ctx, report); err != nil {
		log.WithError(err).Error("标记报告失败状态失败")
	}
	o.raise(ctx, log, SyncFailureAlert(report, cause, o.newID(), end))
	return report, cause
}

// keepAlive 每隔 heartbeat 续约一次，续约失败时以 ErrLeaseLost 取消返回的 ctx。
// 返回的 stop 会等待续约协程退出。
func (o *Orchestrator) keepAlive(ctx context.Context, lease lock.Lease, ttl time.Duration) (context.Context, func()) {
	runCtx, cancel := context.WithCancelCause(ctx)
	interval := o.heartbeat
	if interval <= 0 {
		interval = ttl / 3
	}
	stopCh := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancelRefresh := context.WithTimeout(runCtx, interval)
				err := lease.Refresh(refreshCtx)
				cancelRefresh()
				if err != nil {
					o.Logger.WithField("key", lease.Key()).WithError(err).Error("对账租约续约失败，中止运行")
					cancel(fmt.Errorf("%w: %v", ErrLeaseLost, err))
					return
				}
			}
		}
	}()

	return runCtx, func() {
		close(stopCh)
		<-exited
		cancel(nil)
	}
}

// interrupted 运行被取消时把取消原因带进错误
func interrupted(runCtx context.Context, err error) error {
	if runCtx.Err() == nil {
		return err
	}
	cause := context.Cause(runCtx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %v", cause, err)
}

func (o *Orchestrator) raise(ctx context.Context, log *logrus.Entry, a *model.ReconciliationAlert) {
	if err := o.Alerts.RaiseAlert(ctx, a); err != nil {
		log.WithField("alert_type", a.Type).WithError(err).Error("发送告警失败")
		return
	}
	log.WithFields(logrus.Fields{"alert_id": a.ID, "alert_type": a.Type, "severity": a.Severity}).Warn("已发出对账告警")
}

// RunResult RunEvent 中单个平台的结果
type RunResult struct {
	Platform string
	Report   *model.ReconciliationReport
	Err      error
}

// RunEvent 并发对账一个活动的多个平台，platforms 为空时使用策略中启用的全部平台。
// 各平台 key 不同，互不影响；单个平台失败不影响其他平台。
func (o *Orchestrator) RunEvent(ctx context.Context, eventID string, platforms []string) []RunResult {
	policy := o.Policy.Snapshot()
	if len(platforms) == 0 {
		platforms = policy.EnabledPlatforms
	}

	results := make([]RunResult, len(platforms))
	g, gctx := errgroup.WithContext(ctx)
	if policy.MaxConcurrentRuns > 0 {
		g.SetLimit(policy.MaxConcurrentRuns)
	}
	for i, name := range platforms {
		i, name := i, name
		g.Go(func() error {
			report, err := o.Run(gctx, eventID, name)
			results[i] = RunResult{Platform: name, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
