package platform

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ticketrecon/internal/model"
)

var (
	ErrAdapterTimeout   = errors.New("票务平台请求超时")
	ErrUnknownPlatform  = errors.New("未知的票务平台")
	ErrEventNotLinked   = errors.New("活动未关联该票务平台")
	ErrMalformedPayload = errors.New("票务平台返回数据格式错误")
)

// Adapter 票务平台适配器，每个平台一个实现
type Adapter interface {
	Name() string
	FetchSales(ctx context.Context, eventID string) ([]*model.PlatformSaleRecord, error)
}

// Registry 按平台名选择适配器
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Lookup(platform string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
