package cache

import (
	"context"
	"fmt"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/logger"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

// InitRedis 对账租约锁使用的 Redis 连接
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	log := logger.Component("Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	RedisClient = client
	log.Info("Redis 连接成功")
	return client
}
