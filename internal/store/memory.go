package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

// Memory 是 Store 的内存实现，供测试和网关的 -db=memory 模式使用。
// 事务持有唯一一把互斥锁，因此天然可串行化；回滚通过事务开始时的整库快照实现。
type Memory struct {
	mu       sync.Mutex
	accounts map[string]account.Account
	requests map[string]emergency.Request
	forms    map[string]intake.Form
	inTx     bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]account.Account),
		requests: make(map[string]emergency.Request),
		forms:    make(map[string]intake.Form),
	}
}

func (m *Memory) lock() func() {
	if m.inTx {
		// 事务视图已经持有锁
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	defer m.lock()()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) SaveAccount(ctx context.Context, a *account.Account) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("account id required")
	}
	defer m.lock()()
	cp := *a
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	a.UpdatedAt = now
	m.accounts[cp.ID] = cp
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*emergency.Request, error) {
	defer m.lock()()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) CreateRequest(ctx context.Context, r *emergency.Request) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("request id required")
	}
	defer m.lock()()
	if _, exists := m.requests[r.ID]; exists {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.requests[r.ID] = *r
	return nil
}

func (m *Memory) SaveRequest(ctx context.Context, r *emergency.Request) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("request id required")
	}
	defer m.lock()()
	r.UpdatedAt = time.Now()
	m.requests[r.ID] = *r
	return nil
}

func (m *Memory) DeleteRequest(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

func (m *Memory) ListRequests(ctx context.Context, f RequestFilter) ([]emergency.Request, error) {
	defer m.lock()()
	out := make([]emergency.Request, 0)
	for _, r := range m.requests {
		if f.Domain != "" && r.Domain != f.Domain {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.ResponderID != nil && r.ResponderID != *f.ResponderID {
			continue
		}
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetForm(ctx context.Context, id string) (*intake.Form, error) {
	defer m.lock()()
	f, ok := m.forms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *Memory) PutForm(ctx context.Context, form *intake.Form) error {
	if form == nil || form.ID == "" {
		return fmt.Errorf("form id required")
	}
	defer m.lock()()
	now := time.Now()
	if prev, ok := m.forms[form.ID]; ok {
		// 覆盖写保留首次提交时间
		form.SubmittedAt = prev.SubmittedAt
	} else if form.SubmittedAt.IsZero() {
		form.SubmittedAt = now
	}
	form.UpdatedAt = now
	m.forms[form.ID] = *form
	return nil
}

// InTx 在全局锁内执行 fn；fn 返回错误时恢复事务前的快照（整体回滚）。
func (m *Memory) InTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := cloneMap(m.accounts)
	requests := cloneMap(m.requests)
	forms := cloneMap(m.forms)

	tx := &Memory{
		accounts: m.accounts,
		requests: m.requests,
		forms:    m.forms,
		inTx:     true,
	}
	if err := fn(tx); err != nil {
		m.accounts = accounts
		m.requests = requests
		m.forms = forms
		return err
	}
	return nil
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
