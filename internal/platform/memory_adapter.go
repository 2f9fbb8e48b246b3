package platform

import (
	"context"
	"sync"

	"ticketrecon/internal/model"
)

// MemoryAdapter 内存适配器，本地演示和测试用
type MemoryAdapter struct {
	name string

	mu    sync.RWMutex
	sales map[string][]*model.PlatformSaleRecord
	err   error
}

func NewMemoryAdapter(name string) *MemoryAdapter {
	return &MemoryAdapter{name: name, sales: make(map[string][]*model.PlatformSaleRecord)}
}

func (m *MemoryAdapter) Name() string {
	return m.name
}

func (m *MemoryAdapter) SetSales(eventID string, sales ...*model.PlatformSaleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[eventID] = sales
}

// FailWith 之后的拉取全部返回该错误，传 nil 恢复
func (m *MemoryAdapter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryAdapter) FetchSales(ctx context.Context, eventID string) ([]*model.PlatformSaleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	src := m.sales[eventID]
	out := make([]*model.PlatformSaleRecord, 0, len(src))
	for _, s := range src {
		cp := *s
		cp.EventID = eventID
		cp.Platform = m.name
		out = append(out, &cp)
	}
	return out, nil
}
