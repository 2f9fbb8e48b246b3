package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"ticketrecon/internal/config"
	"ticketrecon/internal/infrastructure/lock"
	"ticketrecon/internal/model"
	"ticketrecon/internal/platform"
)

var errStale = errors.New("stale sale")

// memStore 内存版的全部存储端口
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	sales   map[int64]*model.SaleRecord
	audits  []*model.AuditLogEntry
	reports map[string]*model.ReconciliationReport
	alerts  []*model.ReconciliationAlert
	applied []*model.Correction

	correctionErr error
	completeErr   error
}

func newMemStore() *memStore {
	return &memStore{
		sales:   make(map[int64]*model.SaleRecord),
		reports: make(map[string]*model.ReconciliationReport),
	}
}

func (m *memStore) add(s *model.SaleRecord) *model.SaleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.Status == "" {
		s.Status = model.SaleStatusActive
	}
	if s.Currency == "" {
		s.Currency = "AUD"
	}
	m.sales[s.ID] = s
	return s
}

func (m *memStore) sale(id int64) model.SaleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sales[id]
}

func (m *memStore) ListSales(_ context.Context, eventID, platformName string) ([]*model.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SaleRecord
	for _, s := range m.sales {
		if s.EventID == eventID && s.Platform == platformName && s.Status == model.SaleStatusActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ApplyCorrection(_ context.Context, c *model.Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.correctionErr != nil {
		return m.correctionErr
	}
	switch c.Kind {
	case model.CorrectionInsertSale:
		m.nextID++
		cp := *c.Sale
		cp.ID = m.nextID
		m.sales[cp.ID] = &cp
	case model.CorrectionUpdateAmount:
		s, ok := m.sales[c.SaleID]
		if !ok || s.Status != model.SaleStatusActive || s.TotalAmount != c.ExpectedAmount {
			return errStale
		}
		s.TotalAmount = c.NewAmount
		s.Currency = c.NewCurrency
	case model.CorrectionMergeSale:
		s, ok := m.sales[c.SaleID]
		if !ok || s.Status != model.SaleStatusActive {
			return errStale
		}
		s.Status = model.SaleStatusMerged
		s.MergedInto = model.Int64Ptr(c.CanonicalID)
	default:
		return errors.New("unknown correction")
	}
	m.applied = append(m.applied, c)
	m.audits = append(m.audits, c.Audit)
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) CreateReport(_ context.Context, r *model.ReconciliationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) transition(r *model.ReconciliationReport, target string) error {
	cur, ok := m.reports[r.ID]
	if !ok || !model.CanReportTransitionTo(cur.Status, target) {
		return errors.New("invalid report transition")
	}
	cp := *r
	cp.Status = target
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) CompleteReport(_ context.Context, r *model.ReconciliationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	return m.transition(r, model.ReportStatusCompleted)
}

func (m *memStore) FailReport(_ context.Context, r *model.ReconciliationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(r, model.ReportStatusFailed)
}

func (m *memStore) RaiseAlert(_ context.Context, a *model.ReconciliationAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) alertsOfType(typ string) []*model.ReconciliationAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReconciliationAlert
	for _, a := range m.alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) auditsOfAction(action string) []*model.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditLogEntry
	for _, e := range m.audits {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// blockingAdapter 拉取时阻塞，直到 release 关闭或 ctx 结束
type blockingAdapter struct {
	name    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingAdapter(name string) *blockingAdapter {
	return &blockingAdapter{name: name, started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingAdapter) Name() string { return b.name }

func (b *blockingAdapter) FetchSales(ctx context.Context, _ string) ([]*model.PlatformSaleRecord, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type harness struct {
	store    *memStore
	policy   *config.PolicyStore
	adapters *platform.Registry
	orch     *Orchestrator
}

func newHarness(t *testing.T, mutate func(*config.ReconciliationConfig), adapters ...platform.Adapter) *harness {
	t.Helper()
	cfg := config.DefaultReconciliationConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	store := newMemStore()
	policy := config.NewPolicyStore(cfg)
	reg := platform.NewRegistry(adapters...)
	orch := NewOrchestrator(Deps{
		Sales:    store,
		Reports:  store,
		Audit:    store,
		Alerts:   store,
		Adapters: reg,
		Policy:   policy,
		Locker:   lock.NewLocalLocker(),
	})
	return &harness{store: store, policy: policy, adapters: reg, orch: orch}
}

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func localSale(orderID string, amount int64, minute int) *model.SaleRecord {
	s := &model.SaleRecord{
		EventID:       "evt-1",
		Platform:      model.PlatformHumanitix,
		CustomerEmail: "guest-" + orderID + "@example.com",
		Quantity:      1,
		TotalAmount:   amount,
		Currency:      "AUD",
		PurchasedAt:   baseTime.Add(time.Duration(minute) * time.Minute),
	}
	if orderID != "" {
		s.PlatformOrderID = model.StringPtr(orderID)
	}
	return s
}

func platformSale(orderID string, amount int64) *model.PlatformSaleRecord {
	return &model.PlatformSaleRecord{
		OrderID:       orderID,
		EventID:       "evt-1",
		Platform:      model.PlatformHumanitix,
		CustomerEmail: "guest-" + orderID + "@example.com",
		Quantity:      1,
		TotalAmount:   amount,
		Currency:      "AUD",
		PurchasedAt:   baseTime,
	}
}
