package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
)

// Matcher 受理：把一条 pending 求助绑定到责任方并占用其容量。
// 状态流转和容量扣减在同一个事务里提交，要么全部生效要么全部回滚——
// 两个类别走完全相同的路径。
type Matcher struct {
	store    store.Store
	ledger   *Ledger
	hub      *watch.Hub
	notifier notify.Notifier
}

func NewMatcher(st store.Store, ledger *Ledger, hub *watch.Hub, n notify.Notifier) *Matcher {
	if n == nil {
		n = notify.Nop{}
	}
	return &Matcher{store: st, ledger: ledger, hub: hub, notifier: n}
}

// kindForDomain 请求类别到责任方角色的映射。
func kindForDomain(d emergency.Domain) account.Kind {
	switch d {
	case emergency.DomainMedical:
		return account.KindHospital
	case emergency.DomainVehicle:
		return account.KindMechanic
	default:
		return ""
	}
}

// Accept 责任方受理一条求助。
// 并发受理同一条求助时恰好一方成功，另一方拿到 ErrAlreadyHandled；
// 失败方不产生任何容量扣减。
func (m *Matcher) Accept(ctx context.Context, responderID, requestID string) (*emergency.Request, error) {
	if responderID == "" {
		return nil, ErrNotAuthenticated
	}

	var (
		accepted  *emergency.Request
		responder *account.Account
	)
	err := m.store.InTx(ctx, func(tx store.Store) error {
		r, err := tx.GetRequest(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			// 取消是硬删除，并发下请求可能在读取前已消失
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if r.Status != emergency.StatusPending || r.Bound() {
			return ErrAlreadyHandled
		}

		a, err := tx.GetAccount(ctx, responderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotAuthenticated
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if a.Kind != kindForDomain(r.Domain) {
			return fmt.Errorf("%w: %s cannot accept %s requests", ErrDomainMismatch, a.Kind, r.Domain)
		}

		// 先占容量：不足则整个事务放弃，请求保持 pending
		a, err = m.ledger.Reserve(ctx, tx, responderID)
		if err != nil {
			return err
		}
		if err := emergency.Accept(r, responderID, time.Now()); err != nil {
			return ErrAlreadyHandled
		}
		if err := tx.SaveRequest(ctx, r); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		accepted = r
		responder = a
		return nil
	})
	if err != nil {
		m.notifyFailure(ctx, err)
		return nil, err
	}

	m.hub.Publish(watch.Event{Topic: watch.TopicPending(accepted.Domain), Type: watch.EventDelete, Request: accepted})
	m.hub.Publish(watch.Event{Topic: watch.TopicAccepted(accepted.Domain, responderID), Type: watch.EventPut, Request: accepted})
	m.hub.Publish(watch.Event{Topic: watch.TopicRequest(accepted.ID), Type: watch.EventPut, Request: accepted})
	m.hub.Publish(watch.Event{Topic: watch.TopicAccount(responder.ID), Type: watch.EventPut, Account: responder})
	m.notifier.Success(ctx, "Accepted", "Emergency accepted.")
	return accepted, nil
}

// notifyFailure 把受理失败的错误翻译成可读提示（容量缺口按资源命名）。
func (m *Matcher) notifyFailure(ctx context.Context, err error) {
	var capErr *CapacityError
	switch {
	case errors.As(err, &capErr):
		m.notifier.Error(ctx, "No Resources", capErr.Error()+".")
	case errors.Is(err, ErrAlreadyHandled):
		m.notifier.Info(ctx, "Too Late", "This emergency was already handled.")
	case errors.Is(err, ErrNotFound):
		m.notifier.Info(ctx, "Gone", "This emergency is no longer available.")
	default:
		m.notifier.Error(ctx, "Error", "Failed to accept emergency.")
	}
}
