package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server         ServerConfig              `mapstructure:"server"`
	MySQL          MySQLConfig               `mapstructure:"mysql"`
	Redis          RedisConfig               `mapstructure:"redis"`
	MQ             MQConfig                  `mapstructure:"mq"`
	Log            LogConfig                 `mapstructure:"log"`
	Reconciliation ReconciliationConfig      `mapstructure:"reconciliation"`
	Platforms      map[string]PlatformConfig `mapstructure:"platforms"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"`
	// 允许跨域的来源，为空时允许全部
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MQConfig 消息投递配置，driver 为 kafka 或 rabbitmq
type MQConfig struct {
	Driver   string         `mapstructure:"driver"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Topic    TopicConfig    `mapstructure:"topic"`
	// 出箱消息最大重试次数
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

type TopicConfig struct {
	Alert  string `mapstructure:"alert"`
	Report string `mapstructure:"report"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PlatformConfig 单个票务平台适配器的连接参数
type PlatformConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	APIKeyHeader    string `mapstructure:"api_key_header"`
	OrdersPath      string `mapstructure:"orders_path"`
	PageSize        int    `mapstructure:"page_size"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
}

// LoadConfig 加载配置文件，环境变量（RECON_ 前缀）优先于文件
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.log_level", "warn")
	v.SetDefault("mq.driver", "kafka")
	v.SetDefault("mq.topic.alert", "reconciliation.alert")
	v.SetDefault("mq.topic.report", "reconciliation.report")
	v.SetDefault("mq.max_retry_count", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	d := DefaultReconciliationConfig()
	v.SetDefault("reconciliation.auto_correct_threshold", d.AutoCorrectThreshold)
	v.SetDefault("reconciliation.duplicate_time_window", d.DuplicateTimeWindow)
	v.SetDefault("reconciliation.alert_threshold.count", d.AlertThreshold.Count)
	v.SetDefault("reconciliation.alert_threshold.amount", d.AlertThreshold.Amount)
	v.SetDefault("reconciliation.schedule_interval", d.ScheduleInterval)
	v.SetDefault("reconciliation.enabled_platforms", d.EnabledPlatforms)
	v.SetDefault("reconciliation.amount_tolerance", d.AmountTolerance)
	v.SetDefault("reconciliation.escalation_count", d.EscalationCount)
	v.SetDefault("reconciliation.adapter_timeout_seconds", d.AdapterTimeoutSeconds)
	v.SetDefault("reconciliation.run_lease_timeout_minutes", d.RunLeaseTimeoutMinutes)
	v.SetDefault("reconciliation.max_concurrent_runs", d.MaxConcurrentRuns)
}

// Validate 校验配置，启用的平台必须有对应的适配器配置
func (c *Config) Validate() error {
	if err := c.Reconciliation.Validate(); err != nil {
		return err
	}
	for _, p := range c.Reconciliation.EnabledPlatforms {
		if _, ok := c.Platforms[p]; !ok {
			return fmt.Errorf("平台 %s 已启用但缺少适配器配置", p)
		}
	}
	switch c.MQ.Driver {
	case "kafka", "rabbitmq":
	default:
		return fmt.Errorf("不支持的消息驱动: %s", c.MQ.Driver)
	}
	return nil
}
