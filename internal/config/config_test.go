package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
server:
  port: 9090
mq:
  driver: rabbitmq
reconciliation:
  auto_correct_threshold: 2500
  duplicate_time_window: 15
  schedule_interval: 60
  enabled_platforms: [humanitix]
platforms:
  humanitix:
    base_url: http://localhost:1234
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Reconciliation.AutoCorrectThreshold != 2500 {
		t.Fatalf("threshold = %d", cfg.Reconciliation.AutoCorrectThreshold)
	}
	// 未配置的字段取默认值
	if cfg.Reconciliation.AdapterTimeoutSeconds != 30 {
		t.Fatalf("adapter timeout default = %d", cfg.Reconciliation.AdapterTimeoutSeconds)
	}
	if cfg.MQ.Topic.Alert != "reconciliation.alert" {
		t.Fatalf("alert topic default = %q", cfg.MQ.Topic.Alert)
	}
	if cfg.Platforms["humanitix"].BaseURL != "http://localhost:1234" {
		t.Fatalf("platform base url = %q", cfg.Platforms["humanitix"].BaseURL)
	}
}

func TestLoadConfig_EnabledPlatformWithoutAdapter(t *testing.T) {
	body := `
reconciliation:
  schedule_interval: 10
  enabled_platforms: [eventbrite]
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for enabled platform without adapter config")
	}
}

func TestReconciliationConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ReconciliationConfig)
		ok     bool
	}{
		{"default", func(*ReconciliationConfig) {}, true},
		{"negative threshold", func(c *ReconciliationConfig) { c.AutoCorrectThreshold = -1 }, false},
		{"zero schedule", func(c *ReconciliationConfig) { c.ScheduleInterval = 0 }, false},
		{"negative alert amount", func(c *ReconciliationConfig) { c.AlertThreshold.Amount = -5 }, false},
		{"zero lease", func(c *ReconciliationConfig) { c.RunLeaseTimeoutMinutes = 0 }, false},
	}
	for _, tc := range cases {
		c := DefaultReconciliationConfig()
		tc.mutate(&c)
		err := c.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestPolicyStoreSnapshotIsolation(t *testing.T) {
	store := NewPolicyStore(DefaultReconciliationConfig())
	snap := store.Snapshot()
	if snap.Version != 1 {
		t.Fatalf("initial version = %d", snap.Version)
	}

	snap.EnabledPlatforms[0] = "mutated"
	if store.Snapshot().EnabledPlatforms[0] == "mutated" {
		t.Fatalf("snapshot shares slice with store")
	}

	next := DefaultReconciliationConfig()
	next.AutoCorrectThreshold = 5000
	updated, err := store.Update(next)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 || updated.AutoCorrectThreshold != 5000 {
		t.Fatalf("updated = %+v", updated)
	}
	// 旧快照不受影响
	if snap.AutoCorrectThreshold != 1000 {
		t.Fatalf("old snapshot changed: %d", snap.AutoCorrectThreshold)
	}

	bad := DefaultReconciliationConfig()
	bad.ScheduleInterval = 0
	if _, err := store.Update(bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if store.Snapshot().Version != 2 {
		t.Fatalf("failed update bumped version")
	}
}
