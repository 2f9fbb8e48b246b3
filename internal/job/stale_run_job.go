package job

import (
	"context"
	"errors"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/lock"
	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/model"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var errLeaseExpired = errors.New("对账租约过期，进程可能已退出")

// ReportFinisher 把遗留的报告置为失败并告警
type ReportFinisher interface {
	reconcile.ReportStore
	reconcile.AlertSink
}

// StaleRunCompensateJob 补偿进程崩溃后停留在 running 的报告：
// 开始时间早于租约超时且租约已无人持有的报告置为 failed，并发出 sync_failure 告警。
type StaleRunCompensateJob struct {
	reportRepo *repository.ReportRepository
	store      ReportFinisher
	policy     *config.PolicyStore
	locker     lock.Locker
	log        *logrus.Entry
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewStaleRunCompensateJob(db *gorm.DB, store ReportFinisher, policy *config.PolicyStore, locker lock.Locker) *StaleRunCompensateJob {
	return &StaleRunCompensateJob{
		reportRepo: repository.NewReportRepository(db),
		store:      store,
		policy:     policy,
		locker:     locker,
		log:        logger.Component("StaleRunCompensateJob"),
		stopCh:     make(chan struct{}),
		interval:   time.Minute,
		batchSize:  50,
		now:        time.Now,
	}
}

func (j *StaleRunCompensateJob) Start(ctx context.Context) {
	j.log.Info("补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.compensateStaleRuns(ctx)
		}
	}
}

func (j *StaleRunCompensateJob) Stop() {
	close(j.stopCh)
}

func (j *StaleRunCompensateJob) compensateStaleRuns(ctx context.Context) {
	before := j.now().Add(-j.policy.Snapshot().RunLeaseTimeout())
	reports, err := j.reportRepo.ListStaleRunning(ctx, before, j.batchSize)
	if err != nil {
		j.log.WithError(err).Error("查询遗留报告失败")
		return
	}
	if len(reports) == 0 {
		return
	}

	j.log.WithField("count", len(reports)).Warn("发现停留在 running 的报告")
	for _, report := range reports {
		j.compensate(ctx, report)
	}
}

// compensate 先抢占该报告的运行租约，抢不到说明运行仍在续约，跳过
func (j *StaleRunCompensateJob) compensate(ctx context.Context, report *model.ReconciliationReport) {
	key := model.RunKey(report.EventID, report.Platform)
	lease, err := j.locker.TryAcquire(ctx, key, time.Minute)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			j.log.WithFields(logrus.Fields{"report_id": report.ID, "key": key}).Info("运行仍持有租约，跳过")
			return
		}
		j.log.WithField("key", key).WithError(err).Error("获取对账租约失败")
		return
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			j.log.WithField("key", key).WithError(err).Warn("释放对账租约失败")
		}
	}()
	j.failReport(ctx, report)
}

func (j *StaleRunCompensateJob) failReport(ctx context.Context, report *model.ReconciliationReport) {
	log := j.log.WithFields(logrus.Fields{"report_id": report.ID, "event_id": report.EventID, "platform": report.Platform})

	end := j.now()
	report.Status = model.ReportStatusFailed
	report.EndTime = &end
	report.ErrorMessage = errLeaseExpired.Error()
	report.DiscrepanciesFound = 0
	report.DiscrepanciesResolved = 0

	if err := j.store.FailReport(ctx, report); err != nil {
		// 并发的补偿或迟到的运行已经把报告结束
		if errors.Is(err, repository.ErrReportStatusInvalid) {
			return
		}
		log.WithError(err).Error("标记报告失败状态失败")
		return
	}
	if err := j.store.RaiseAlert(ctx, reconcile.SyncFailureAlert(report, errLeaseExpired, uuid.NewString(), end)); err != nil {
		log.WithError(err).Error("发送告警失败")
		return
	}
	log.Warn("遗留报告已标记为失败")
}
