package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/handler"
	"ticketrecon/internal/infrastructure/cache"
	"ticketrecon/internal/infrastructure/database"
	"ticketrecon/internal/infrastructure/lock"
	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/infrastructure/mq"
	"ticketrecon/internal/job"
	"ticketrecon/internal/platform"
	"ticketrecon/internal/reconcile"
	"ticketrecon/internal/repository"
	"ticketrecon/internal/service"
	"ticketrecon/pkg/idgen"
)

func main() {
	configPath := os.Getenv("RECON_CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("加载配置失败: %v", err)
	}

	log := logger.InitLogger(&cfg.Log)

	idgen.Init(cfg.Server.WorkerID)

	db := database.InitMySQL(&cfg.MySQL)
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	redisClient := cache.InitRedis(&cfg.Redis)
	defer redisClient.Close()

	publisher, err := mq.NewPublisher(&cfg.MQ)
	if err != nil {
		log.Fatalf("初始化消息队列失败: %v", err)
	}
	defer publisher.Close()

	// 票务平台适配器：平台活动ID从关联表解析
	links := repository.NewTicketPlatformRepository(db)
	registry := platform.NewRegistry()
	for name, pcfg := range cfg.Platforms {
		adapter, err := platform.NewHTTPAdapter(name, pcfg, links)
		if err != nil {
			log.Fatalf("初始化票务平台 %s 失败: %v", name, err)
		}
		registry.Register(adapter)
	}
	log.WithField("platforms", registry.Names()).Info("票务平台适配器已注册")

	policy := config.NewPolicyStore(cfg.Reconciliation)
	store := service.NewEngineStore(db, cfg.MQ.Topic)
	locker := lock.NewRedisLocker(redisClient)
	orchestrator := reconcile.NewOrchestrator(reconcile.Deps{
		Sales:    store,
		Reports:  store,
		Audit:    store,
		Alerts:   store,
		Adapters: registry,
		Policy:   policy,
		Locker:   locker,
		Logger:   logger.Component("Reconcile"),
	})

	reconcileService := service.NewReconcileService(db, orchestrator, policy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, publisher, cfg.MQ.MaxRetryCount)
	go outboxSender.Start(ctx)

	scheduledJob := job.NewScheduledReconcileJob(db, orchestrator, policy)
	go scheduledJob.Start(ctx)

	staleRunJob := job.NewStaleRunCompensateJob(db, store, policy, locker)
	go staleRunJob.Start(ctx)

	h := handler.NewHandler(
		reconcileService,
		service.NewDiscrepancyService(db),
		service.NewAdjustmentService(db),
		service.NewAlertService(db),
	)
	router := handler.SetupRouter(h, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务；进行中的对账由锁租约和补偿任务兜底
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务关闭异常: %v", err)
	}

	log.Info("服务已关闭")
}
