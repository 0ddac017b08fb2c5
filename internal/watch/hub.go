package watch

import (
	"sync"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

// EventType 变更类型。
type EventType string

const (
	EventPut    EventType = "put"    // 新建或更新
	EventDelete EventType = "delete" // 硬删除（取消的请求）
)

// Event 单个实体的变更通知。Topic 决定哪个负载字段有效。
type Event struct {
	Topic string
	Type  EventType

	Request *emergency.Request
	Account *account.Account
	Form    *intake.Form
}

// 主题命名：按实体范围划分，订阅方只收自己关心的子集。
func TopicPending(d emergency.Domain) string {
	return "requests." + string(d) + ".pending"
}

func TopicAccepted(d emergency.Domain, responderID string) string {
	return "requests." + string(d) + ".accepted." + responderID
}

func TopicRequest(id string) string {
	return "request." + id
}

func TopicAccount(id string) string {
	return "account." + id
}

func TopicForm(formID string) string {
	return "form." + formID
}

// 订阅通道的缓冲大小。写满时事件被丢弃，订阅方需通过快照重新对齐。
const subscriptionBuffer = 16

// Subscription 单个订阅。Close 幂等，关闭后不再投递任何事件。
type Subscription struct {
	topic string
	id    uint64
	ch    chan Event
	hub   *Hub
	once  sync.Once
}

// Events 返回事件通道；Close 后通道被关闭。
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Topic 返回订阅的主题。
func (s *Subscription) Topic() string {
	return s.topic
}

// Close 注销订阅并关闭通道。可安全地多次调用。
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.hub != nil {
			s.hub.remove(s)
		}
		close(s.ch)
	})
}

// Hub 管理式订阅注册表：按主题增量注册/注销。
// 取代逐条数据变更时整体重建 watch 的做法——同一个主题的订阅只建立一次，
// 移除也只影响该主题。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe 注册一个主题订阅。
func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		topic: topic,
		id:    h.nextID,
		ch:    make(chan Event, subscriptionBuffer),
		hub:   h,
	}
	if h.closed {
		// Hub 已关闭：返回已关闭的空订阅，调用方无需特判
		sub.closeChannelOnly()
		return sub
	}
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[uint64]*Subscription)
		h.subs[topic] = set
	}
	set[sub.id] = sub
	return sub
}

// Publish 向主题的所有订阅投递事件。
// 投递不阻塞：订阅方缓冲写满时事件被丢弃（由订阅方用快照重新对齐）。
func (h *Hub) Publish(e Event) {
	if h == nil || e.Topic == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs[e.Topic] {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Close 关闭 Hub 和所有订阅。
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0)
	if !h.closed {
		h.closed = true
		for _, set := range h.subs {
			for _, sub := range set {
				subs = append(subs, sub)
			}
		}
		h.subs = make(map[string]map[uint64]*Subscription)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.closeChannelOnly()
	}
}

func (s *Subscription) closeChannelOnly() {
	s.once.Do(func() {
		close(s.ch)
	})
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.topic]; ok {
		delete(set, s.id)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
}
