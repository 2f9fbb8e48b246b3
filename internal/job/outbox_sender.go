package job

import (
	"context"
	"time"

	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/infrastructure/mq"
	"ticketrecon/internal/model"
	"ticketrecon/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender 轮询出箱表，把告警和报告事件投递到消息队列
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	publisher     mq.Publisher
	log           *logrus.Entry
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, maxRetryCount int) *OutboxSender {
	if maxRetryCount <= 0 {
		maxRetryCount = 5
	}
	return &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		log:           logger.Component("OutboxSender"),
		stopCh:        make(chan struct{}),
		interval:      500 * time.Millisecond,
		batchSize:     100,
		maxRetryCount: maxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	log := s.log.WithFields(logrus.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey})

	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, []byte(msg.Payload))
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			log.WithError(updateErr).Error("更新消息状态失败")
		} else {
			log.Debug("消息发送成功")
		}
		return
	}

	log.WithError(err).Warn("消息发送失败")

	if msg.RetryCount+1 >= s.maxRetryCount {
		if markErr := s.outboxRepo.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("标记消息失败状态失败")
		} else {
			log.Error("消息超过最大重试次数，标记为失败")
		}
		return
	}
	if incErr := s.outboxRepo.IncrementRetryCount(ctx, msg.ID, err.Error()); incErr != nil {
		log.WithError(incErr).Error("增加重试次数失败")
	}
}
