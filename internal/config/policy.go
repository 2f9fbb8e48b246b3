package config

import (
	"errors"
	"sync"
	"time"
)

// AlertThreshold 报告中待人工处理的差异超过任一阈值即告警
type AlertThreshold struct {
	Count  int   `mapstructure:"count" json:"count"`
	Amount int64 `mapstructure:"amount" json:"amount"` // 最小货币单位
}

// ReconciliationConfig 对账策略。每次对账开始时取一份快照，运行期间不变。
type ReconciliationConfig struct {
	Version int64 `mapstructure:"-" json:"version"`

	// 允许自动修正的最大金额影响（最小货币单位，严格小于才自动修正）
	AutoCorrectThreshold int64 `mapstructure:"auto_correct_threshold" json:"auto_correct_threshold"`
	// 重复购买判定窗口（分钟）
	DuplicateTimeWindow int            `mapstructure:"duplicate_time_window" json:"duplicate_time_window"`
	AlertThreshold      AlertThreshold `mapstructure:"alert_threshold" json:"alert_threshold"`
	// 定时对账间隔（分钟）
	ScheduleInterval int      `mapstructure:"schedule_interval" json:"schedule_interval"`
	EnabledPlatforms []string `mapstructure:"enabled_platforms" json:"enabled_platforms"`

	// 金额比较容差（最小货币单位），差值不超过该值视为一致
	AmountTolerance int64 `mapstructure:"amount_tolerance" json:"amount_tolerance"`
	// 同类差异数量超过该值时严重度至少为 high
	EscalationCount        int `mapstructure:"escalation_count" json:"escalation_count"`
	AdapterTimeoutSeconds  int `mapstructure:"adapter_timeout_seconds" json:"adapter_timeout_seconds"`
	RunLeaseTimeoutMinutes int `mapstructure:"run_lease_timeout_minutes" json:"run_lease_timeout_minutes"`
	MaxConcurrentRuns      int `mapstructure:"max_concurrent_runs" json:"max_concurrent_runs"`
}

func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		AutoCorrectThreshold:   1000,
		DuplicateTimeWindow:    10,
		AlertThreshold:         AlertThreshold{Count: 5, Amount: 50000},
		ScheduleInterval:       30,
		EnabledPlatforms:       []string{"humanitix", "eventbrite"},
		AmountTolerance:        0,
		EscalationCount:        10,
		AdapterTimeoutSeconds:  30,
		RunLeaseTimeoutMinutes: 15,
		MaxConcurrentRuns:      4,
	}
}

func (c ReconciliationConfig) Validate() error {
	switch {
	case c.AutoCorrectThreshold < 0:
		return errors.New("auto_correct_threshold 不能为负数")
	case c.DuplicateTimeWindow < 0:
		return errors.New("duplicate_time_window 不能为负数")
	case c.AlertThreshold.Count < 0 || c.AlertThreshold.Amount < 0:
		return errors.New("alert_threshold 不能为负数")
	case c.ScheduleInterval <= 0:
		return errors.New("schedule_interval 必须大于0")
	case c.AmountTolerance < 0:
		return errors.New("amount_tolerance 不能为负数")
	case c.AdapterTimeoutSeconds <= 0:
		return errors.New("adapter_timeout_seconds 必须大于0")
	case c.RunLeaseTimeoutMinutes <= 0:
		return errors.New("run_lease_timeout_minutes 必须大于0")
	}
	return nil
}

func (c ReconciliationConfig) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateTimeWindow) * time.Minute
}

func (c ReconciliationConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSeconds) * time.Second
}

func (c ReconciliationConfig) RunLeaseTimeout() time.Duration {
	return time.Duration(c.RunLeaseTimeoutMinutes) * time.Minute
}

func (c ReconciliationConfig) Schedule() time.Duration {
	return time.Duration(c.ScheduleInterval) * time.Minute
}

func (c ReconciliationConfig) PlatformEnabled(platform string) bool {
	for _, p := range c.EnabledPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

// clone 深拷贝，保证快照与后续更新互不影响
func (c ReconciliationConfig) clone() ReconciliationConfig {
	out := c
	out.EnabledPlatforms = append([]string(nil), c.EnabledPlatforms...)
	return out
}

// PolicyStore 持有当前生效的对账策略，每次更新版本号递增
type PolicyStore struct {
	mu      sync.RWMutex
	current ReconciliationConfig
}

func NewPolicyStore(initial ReconciliationConfig) *PolicyStore {
	initial = initial.clone()
	initial.Version = 1
	return &PolicyStore{current: initial}
}

// Snapshot 返回当前策略的独立副本
func (s *PolicyStore) Snapshot() ReconciliationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update 安装新版本策略，进行中的对账仍使用旧快照
func (s *PolicyStore) Update(next ReconciliationConfig) (ReconciliationConfig, error) {
	if err := next.Validate(); err != nil {
		return ReconciliationConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next = next.clone()
	next.Version = s.current.Version + 1
	s.current = next
	return s.current.clone(), nil
}
