package watch

import (
	"context"
	"sort"
	"sync"

	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

// RequestView 一个求助集合的持续视图：先灌入快照，再按订阅事件增量维护。
// 对应"责任方看到新的 pending 请求不需要轮询"的要求。
type RequestView struct {
	sub *Subscription

	mu       sync.Mutex
	requests map[string]emergency.Request

	changes chan struct{}
	done    chan struct{}
}

// NewRequestView 基于初始快照和一个已建立的订阅构建视图。
// 视图接管订阅的生命周期：Close 视图即关闭订阅。
func NewRequestView(sub *Subscription, snapshot []emergency.Request) *RequestView {
	v := &RequestView{
		sub:      sub,
		requests: make(map[string]emergency.Request, len(snapshot)),
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, r := range snapshot {
		v.requests[r.ID] = r
	}
	go v.run()
	return v
}

func (v *RequestView) run() {
	defer close(v.done)
	for e := range v.sub.Events() {
		if e.Request == nil {
			continue
		}
		v.mu.Lock()
		switch e.Type {
		case EventDelete:
			delete(v.requests, e.Request.ID)
		default:
			v.requests[e.Request.ID] = *e.Request
		}
		v.mu.Unlock()
		v.notify()
	}
}

func (v *RequestView) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

// Snapshot 返回当前集合（按创建时间排序的副本）。
func (v *RequestView) Snapshot() []emergency.Request {
	v.mu.Lock()
	out := make([]emergency.Request, 0, len(v.requests))
	for _, r := range v.requests {
		out = append(out, r)
	}
	v.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Changes 在集合发生变化后收到通知（合并触发，不保证一次变更一条）。
func (v *RequestView) Changes() <-chan struct{} {
	return v.changes
}

// Close 关闭视图和底层订阅；返回时不再有回调活动。
func (v *RequestView) Close() {
	v.sub.Close()
	<-v.done
}

// LoadFormFunc 表单点读。未提交返回 (nil, nil)。
type LoadFormFunc func(ctx context.Context, requestID, requesterID string) (*intake.Form, error)

// formWatch 单个表单的订阅及消费协程。
type formWatch struct {
	requestID string
	sub       *Subscription
	done      chan struct{}
}

// FormTracker 责任方侧的表单视图：为每个已受理请求维护一个表单 watch。
// watch 以复合键注册，Sync 时按需增量添加/移除——已在 watch 的键绝不重复订阅。
type FormTracker struct {
	hub  *Hub
	load LoadFormFunc

	mu      sync.Mutex
	watches map[string]*formWatch  // key: 表单复合键
	forms   map[string]intake.Form // key: 请求 ID
}

func NewFormTracker(hub *Hub, load LoadFormFunc) *FormTracker {
	return &FormTracker{
		hub:     hub,
		load:    load,
		watches: make(map[string]*formWatch),
		forms:   make(map[string]intake.Form),
	}
}

// Sync 将 watch 集合对齐到当前已受理的请求集合。
func (t *FormTracker) Sync(ctx context.Context, accepted []emergency.Request) error {
	want := make(map[string]emergency.Request, len(accepted))
	for _, r := range accepted {
		want[intake.FormID(r.ID, r.RequesterID)] = r
	}

	t.mu.Lock()
	// 移除已不在受理集合中的 watch
	var stale []*formWatch
	for key, w := range t.watches {
		if _, ok := want[key]; !ok {
			stale = append(stale, w)
			delete(t.watches, key)
			delete(t.forms, w.requestID)
		}
	}
	// 只为尚未 watch 的键建立订阅
	var added []*formWatch
	for key, r := range want {
		if _, ok := t.watches[key]; ok {
			continue
		}
		w := &formWatch{
			requestID: r.ID,
			sub:       t.hub.Subscribe(TopicForm(key)),
			done:      make(chan struct{}),
		}
		t.watches[key] = w
		added = append(added, w)
	}
	t.mu.Unlock()

	for _, w := range stale {
		w.sub.Close()
		<-w.done
	}

	for _, w := range added {
		go t.consume(w)
	}

	// 初始快照：订阅建立之后读取，避免漏掉订阅前已提交的表单
	for _, r := range accepted {
		key := intake.FormID(r.ID, r.RequesterID)
		t.mu.Lock()
		_, watching := t.watches[key]
		_, have := t.forms[r.ID]
		t.mu.Unlock()
		if !watching || have || t.load == nil {
			continue
		}
		form, err := t.load(ctx, r.ID, r.RequesterID)
		if err != nil {
			return err
		}
		if form != nil {
			t.mu.Lock()
			t.forms[r.ID] = *form
			t.mu.Unlock()
		}
	}
	return nil
}

func (t *FormTracker) consume(w *formWatch) {
	defer close(w.done)
	for e := range w.sub.Events() {
		if e.Form == nil {
			continue
		}
		t.mu.Lock()
		t.forms[e.Form.RequestID] = *e.Form
		t.mu.Unlock()
	}
}

// Form 按请求 ID 取当前表单；false 表示"尚未提交"。
func (t *FormTracker) Form(requestID string) (intake.Form, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.forms[requestID]
	return f, ok
}

// Watching 返回当前 watch 数量（观测/测试用）。
func (t *FormTracker) Watching() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watches)
}

// Close 移除所有 watch；返回后不再有回调活动。
func (t *FormTracker) Close() {
	t.mu.Lock()
	ws := make([]*formWatch, 0, len(t.watches))
	for _, w := range t.watches {
		ws = append(ws, w)
	}
	t.watches = make(map[string]*formWatch)
	t.forms = make(map[string]intake.Form)
	t.mu.Unlock()

	for _, w := range ws {
		w.sub.Close()
		<-w.done
	}
}
