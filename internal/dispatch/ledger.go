package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
)

// Ledger 资源台账：维护责任方的两类可预订容量。
// 容量字段的所有修改都必须经过这里（手动增减走 Adjust，受理占用走 Reserve），
// 不允许业务层用"读出来再写回去"的方式改容量。
type Ledger struct {
	store    store.Store
	hub      *watch.Hub
	notifier notify.Notifier
}

func NewLedger(st store.Store, hub *watch.Hub, n notify.Notifier) *Ledger {
	if n == nil {
		n = notify.Nop{}
	}
	return &Ledger{store: st, hub: hub, notifier: n}
}

// Adjust 手动增减一类容量，delta 只允许 ±1。
// 结果为负时整体拒绝（无部分效果），返回 ErrInvalidState。
func (l *Ledger) Adjust(ctx context.Context, actorID string, unit account.Unit, delta int) (*account.Account, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	if !unit.Valid() {
		return nil, fmt.Errorf("unknown capacity unit: %s", unit)
	}
	if delta != 1 && delta != -1 {
		return nil, fmt.Errorf("delta must be +1 or -1, got %d", delta)
	}

	var out *account.Account
	err := l.store.InTx(ctx, func(tx store.Store) error {
		a, err := tx.GetAccount(ctx, actorID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if !a.Kind.Responder() {
			return fmt.Errorf("%w: account %s holds no capacity", ErrInvalidState, actorID)
		}

		next := a.CapacityOf(unit) + delta
		if next < 0 {
			primary, secondary := a.Kind.UnitNames()
			name := primary
			if unit == account.UnitSecondary {
				name = secondary
			}
			return fmt.Errorf("%w: no %s available to subtract", ErrInvalidState, name)
		}
		a.SetCapacity(unit, next)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		out = a
		return nil
	})
	if err != nil {
		l.notifier.Error(ctx, "Error", "Failed to update resources.")
		return nil, err
	}

	l.hub.Publish(watch.Event{Topic: watch.TopicAccount(out.ID), Type: watch.EventPut, Account: out})
	l.notifier.Success(ctx, "Success", "Resources updated successfully!")
	return out, nil
}

// Reserve 在已开启的事务内占用一单位容量：要求两类均 >= 1，各减一。
// 不足时返回 *CapacityError（errors.Is(_, ErrInsufficientCapacity) 为真），
// 且不产生任何写入。只能在 store.InTx 回调内调用。
func (l *Ledger) Reserve(ctx context.Context, tx store.Store, responderID string) (*account.Account, error) {
	a, err := tx.GetAccount(ctx, responderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if s := a.CapacityShortage(); s != account.ShortageNone {
		return nil, &CapacityError{Kind: a.Kind, Shortage: s}
	}
	a.CapacityPrimary--
	a.CapacitySecondary--
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return a, nil
}

// Release 归还一单位容量（两类各加一）。
// decline/cancel 都发生在占用之前，所以不会调用它；留给将来的"撤销受理"用。
func (l *Ledger) Release(ctx context.Context, tx store.Store, responderID string) (*account.Account, error) {
	a, err := tx.GetAccount(ctx, responderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	a.CapacityPrimary++
	a.CapacitySecondary++
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return a, nil
}

// Account 读取责任方账号（供外层展示容量）。
func (l *Ledger) Account(ctx context.Context, id string) (*account.Account, error) {
	a, err := l.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return a, nil
}
