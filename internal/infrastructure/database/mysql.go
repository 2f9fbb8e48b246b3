package database

import (
	"fmt"
	"strings"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/logger"
	"ticketrecon/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	log := logger.Component("MySQL")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(LogLevel(cfg.LogLevel)),
	})
	if err != nil {
		log.Fatalf("连接 MySQL 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 DB 失败: %v", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	DB = db
	log.Info("MySQL 连接成功")
	return db
}

// Migrate 自动迁移对账相关的全部表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.TicketPlatform{},
		&model.SaleRecord{},
		&model.ReconciliationReport{},
		&model.ReconciliationDiscrepancy{},
		&model.ReconciliationAlert{},
		&model.AuditLogEntry{},
		&model.ManualAdjustment{},
		&model.OutboxMessage{},
	)
}

// LogLevel 配置中的日志级别转换为 gorm 日志级别，默认 warn
func LogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
