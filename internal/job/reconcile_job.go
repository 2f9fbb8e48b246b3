package job

import (
	"context"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventRunner 对一个活动的若干平台执行对账
type EventRunner interface {
	RunEvent(ctx context.Context, eventID string, platforms []string) []reconcile.RunResult
}

// ScheduledReconcileJob 按策略中的间隔，对所有关联了已启用平台的活动执行对账。
// 间隔在每轮结束后重新读取，策略更新后下一轮生效。
type ScheduledReconcileJob struct {
	linkRepo *repository.TicketPlatformRepository
	runner   EventRunner
	policy   *config.PolicyStore
	log      *logrus.Entry
	stopCh   chan struct{}
}

func NewScheduledReconcileJob(db *gorm.DB, runner EventRunner, policy *config.PolicyStore) *ScheduledReconcileJob {
	return &ScheduledReconcileJob{
		linkRepo: repository.NewTicketPlatformRepository(db),
		runner:   runner,
		policy:   policy,
		log:      logger.Component("ScheduledReconcileJob"),
		stopCh:   make(chan struct{}),
	}
}

func (j *ScheduledReconcileJob) Start(ctx context.Context) {
	interval := j.policy.Snapshot().Schedule()
	j.log.WithField("interval", interval.String()).Info("定时对账任务启动")

	ticker := time.NewTicker(interval)
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
			j.runAll(ctx)
			if next := j.policy.Snapshot().Schedule(); next != interval {
				interval = next
				ticker.Reset(interval)
				j.log.WithField("interval", interval.String()).Info("对账间隔已更新")
			}
		}
	}
}

func (j *ScheduledReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ScheduledReconcileJob) runAll(ctx context.Context) {
	policy := j.policy.Snapshot()
	links, err := j.linkRepo.ListByPlatforms(ctx, policy.EnabledPlatforms)
	if err != nil {
		j.log.WithError(err).Error("查询活动关联失败")
		return
	}
	if len(links) == 0 {
		return
	}

	// links 已按 event_id 排序
	var (
		events    []string
		platforms = make(map[string][]string)
	)
	for _, l := range links {
		if _, ok := platforms[l.EventID]; !ok {
			events = append(events, l.EventID)
		}
		platforms[l.EventID] = append(platforms[l.EventID], l.Platform)
	}

	var completed, failed int
	for _, eventID := range events {
		if ctx.Err() != nil {
			return
		}
		for _, r := range j.runner.RunEvent(ctx, eventID, platforms[eventID]) {
			if r.Err != nil {
				failed++
				j.log.WithFields(logrus.Fields{"event_id": eventID, "platform": r.Platform}).
					WithError(r.Err).Warn("定时对账失败")
				continue
			}
			completed++
		}
	}
	j.log.WithFields(logrus.Fields{
		"events":    len(events),
		"completed": completed,
		"failed":    failed,
	}).Info("本轮定时对账结束")
}
