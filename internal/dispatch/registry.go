package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
	"github.com/google/uuid"
)

// Registry 求助登记表：创建 / 取消 / 拒绝 / 查询。
// 受理（accept）在 Matcher 中，因为它要和台账在同一个事务里提交。
type Registry struct {
	store    store.Store
	hub      *watch.Hub
	notifier notify.Notifier
}

func NewRegistry(st store.Store, hub *watch.Hub, n notify.Notifier) *Registry {
	if n == nil {
		n = notify.Nop{}
	}
	return &Registry{store: st, hub: hub, notifier: n}
}

// CreateInput 创建求助的入参。
type CreateInput struct {
	Domain    emergency.Domain
	Type      string
	Location  string // 地理编码后的地址字符串（外部服务产出）
	Latitude  float64
	Longitude float64

	// 车辆类负载
	VehicleType string
	Description string
	Notes       string
}

// Create 以 pending 状态登记一条求助。
// 发起人资料（姓名/电话/病史/证明）从账号落快照到请求上。
func (g *Registry) Create(ctx context.Context, actorID string, in CreateInput) (*emergency.Request, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	if !in.Domain.Valid() {
		return nil, fmt.Errorf("unknown request domain: %s", in.Domain)
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fmt.Errorf("type required")
	}
	if strings.TrimSpace(in.Location) == "" {
		return nil, fmt.Errorf("location required")
	}

	requester, err := g.store.GetAccount(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	r := &emergency.Request{
		ID:             uuid.NewString(),
		Domain:         in.Domain,
		Status:         emergency.StatusPending,
		RequesterID:    actorID,
		RequesterName:  requester.Name,
		RequesterPhone: requester.Phone,
		Type:           strings.TrimSpace(in.Type),
		Location:       strings.TrimSpace(in.Location),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
	}
	switch in.Domain {
	case emergency.DomainMedical:
		r.MedicalConditions = requester.MedicalConditions
		r.MedicalCertificate = requester.MedicalCertificate
	case emergency.DomainVehicle:
		r.VehicleType = strings.TrimSpace(in.VehicleType)
		r.Description = strings.TrimSpace(in.Description)
		r.Notes = strings.TrimSpace(in.Notes)
	}

	if err := g.store.CreateRequest(ctx, r); err != nil {
		g.notifier.Error(ctx, "Error", "Failed to post emergency.")
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	g.publish(watch.EventPut, r, watch.TopicPending(r.Domain), watch.TopicRequest(r.ID))
	g.notifier.Success(ctx, "Emergency Posted", "Your emergency has been submitted.")
	return r, nil
}

// Cancel 发起人取消自己的 pending 求助：从登记表硬删除。
// 非 pending、非本人发起，都返回 ErrInvalidTransition 且不改任何状态。
func (g *Registry) Cancel(ctx context.Context, actorID, id string) error {
	if actorID == "" {
		return ErrNotAuthenticated
	}

	var cancelled *emergency.Request
	err := g.store.InTx(ctx, func(tx store.Store) error {
		r, err := tx.GetRequest(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if r.RequesterID != actorID {
			return fmt.Errorf("%w: request %s is not owned by %s", ErrInvalidTransition, id, actorID)
		}
		if !emergency.CanTransition(r.Status, emergency.StatusCancelled) {
			return fmt.Errorf("%w: cannot cancel request in status %s", ErrInvalidTransition, r.Status)
		}
		if err := tx.DeleteRequest(ctx, id); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		cancelled = r
		return nil
	})
	if err != nil {
		g.notifier.Error(ctx, "Error", "Failed to cancel emergency.")
		return err
	}

	g.publish(watch.EventDelete, cancelled, watch.TopicPending(cancelled.Domain), watch.TopicRequest(cancelled.ID))
	g.notifier.Success(ctx, "Cancelled", "Your emergency has been cancelled.")
	return nil
}

// Decline 机修方拒绝一条车辆类求助（医疗类没有拒绝路径）。
// 拒绝发生在受理之前，不占用也不归还容量。
func (g *Registry) Decline(ctx context.Context, actorID, id string) (*emergency.Request, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}

	var declined *emergency.Request
	err := g.store.InTx(ctx, func(tx store.Store) error {
		actor, err := tx.GetAccount(ctx, actorID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotAuthenticated
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if actor.Kind != account.KindMechanic {
			return fmt.Errorf("%w: %s accounts cannot decline requests", ErrInvalidTransition, actor.Kind)
		}

		r, err := tx.GetRequest(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if r.Domain != emergency.DomainVehicle {
			return fmt.Errorf("%w: only vehicle requests can be declined", ErrInvalidTransition)
		}
		if r.Status != emergency.StatusPending {
			return ErrAlreadyHandled
		}
		if err := emergency.ApplyTransition(r, emergency.StatusDeclined, time.Now()); err != nil {
			return ErrAlreadyHandled
		}
		if err := tx.SaveRequest(ctx, r); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		declined = r
		return nil
	})
	if err != nil {
		g.notifier.Error(ctx, "Error", "Failed to decline emergency.")
		return nil, err
	}

	// declined 离开 pending 集合
	g.publish(watch.EventDelete, declined, watch.TopicPending(declined.Domain))
	g.publish(watch.EventPut, declined, watch.TopicRequest(declined.ID))
	g.notifier.Success(ctx, "Declined", "Emergency declined.")
	return declined, nil
}

// Get 点读一条求助。
func (g *Registry) Get(ctx context.Context, id string) (*emergency.Request, error) {
	r, err := g.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return r, nil
}

// ListPending 某一类别下待受理且未绑定责任方的求助。
func (g *Registry) ListPending(ctx context.Context, d emergency.Domain) ([]emergency.Request, error) {
	return g.list(ctx, store.RequestFilter{
		Domain:      d,
		Status:      emergency.StatusPending,
		ResponderID: store.Unbound(),
	})
}

// ListAccepted 某责任方已受理的求助。
func (g *Registry) ListAccepted(ctx context.Context, d emergency.Domain, responderID string) ([]emergency.Request, error) {
	return g.list(ctx, store.RequestFilter{
		Domain:      d,
		Status:      emergency.StatusAccepted,
		ResponderID: store.Responder(responderID),
	})
}

// ListByRequester 发起人自己的求助（发起人侧状态页）。
func (g *Registry) ListByRequester(ctx context.Context, requesterID string) ([]emergency.Request, error) {
	return g.list(ctx, store.RequestFilter{RequesterID: requesterID})
}

func (g *Registry) list(ctx context.Context, f store.RequestFilter) ([]emergency.Request, error) {
	out, err := g.store.ListRequests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return out, nil
}

// WatchPending 返回 pending 集合的持续视图（快照 + 增量，不轮询）。
func (g *Registry) WatchPending(ctx context.Context, d emergency.Domain) (*watch.RequestView, error) {
	sub := g.hub.Subscribe(watch.TopicPending(d))
	snapshot, err := g.ListPending(ctx, d)
	if err != nil {
		sub.Close()
		return nil, err
	}
	return watch.NewRequestView(sub, snapshot), nil
}

// WatchAccepted 返回某责任方 accepted 集合的持续视图。
func (g *Registry) WatchAccepted(ctx context.Context, d emergency.Domain, responderID string) (*watch.RequestView, error) {
	sub := g.hub.Subscribe(watch.TopicAccepted(d, responderID))
	snapshot, err := g.ListAccepted(ctx, d, responderID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	return watch.NewRequestView(sub, snapshot), nil
}

// WatchRequest 返回单条求助的状态订阅（发起人侧观察 pending -> accepted/declined）。
func (g *Registry) WatchRequest(id string) *watch.Subscription {
	return g.hub.Subscribe(watch.TopicRequest(id))
}

func (g *Registry) publish(t watch.EventType, r *emergency.Request, topics ...string) {
	for _, topic := range topics {
		g.hub.Publish(watch.Event{Topic: topic, Type: t, Request: r})
	}
}

// NewRequestID 暴露 ID 生成（测试和外层种子数据用）。
func NewRequestID() string {
	return uuid.NewString()
}
