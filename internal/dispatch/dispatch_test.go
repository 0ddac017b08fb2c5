package dispatch

import (
	"context"
	"testing"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
)

// 测试环境：内存存储 + 真实 Hub + 静默通知。
type testEnv struct {
	store    *store.Memory
	hub      *watch.Hub
	ledger   *Ledger
	registry *Registry
	matcher  *Matcher
	linkage  *Linkage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	hub := watch.NewHub()
	t.Cleanup(hub.Close)

	ledger := NewLedger(st, hub, notify.Nop{})
	return &testEnv{
		store:    st,
		hub:      hub,
		ledger:   ledger,
		registry: NewRegistry(st, hub, notify.Nop{}),
		matcher:  NewMatcher(st, ledger, hub, notify.Nop{}),
		linkage:  NewLinkage(st, hub, notify.Nop{}),
	}
}

func (e *testEnv) seedAccount(t *testing.T, a account.Account) *account.Account {
	t.Helper()
	if err := e.store.SaveAccount(context.Background(), &a); err != nil {
		t.Fatalf("seed account %s: %v", a.ID, err)
	}
	return &a
}

func (e *testEnv) seedCivilian(t *testing.T, id string) *account.Account {
	return e.seedAccount(t, account.Account{
		ID:    id,
		Kind:  account.KindCivilian,
		Name:  "Test Civilian",
		Phone: "9876543210",
		Email: id + "@example.com",
	})
}

func (e *testEnv) seedHospital(t *testing.T, id string, beds, ambulances int) *account.Account {
	return e.seedAccount(t, account.Account{
		ID:                id,
		Kind:              account.KindHospital,
		Name:              "City Hospital",
		Email:             id + "@example.com",
		CapacityPrimary:   beds,
		CapacitySecondary: ambulances,
	})
}

func (e *testEnv) seedMechanic(t *testing.T, id string, mechanics, towTrucks int) *account.Account {
	return e.seedAccount(t, account.Account{
		ID:                id,
		Kind:              account.KindMechanic,
		Name:              "Roadside Garage",
		Email:             id + "@example.com",
		CapacityPrimary:   mechanics,
		CapacitySecondary: towTrucks,
	})
}

func (e *testEnv) createRequest(t *testing.T, requesterID string, d emergency.Domain) *emergency.Request {
	t.Helper()
	in := CreateInput{
		Domain:   d,
		Type:     "Cardiac Arrest",
		Location: "MG Road, Bengaluru",
	}
	if d == emergency.DomainVehicle {
		in.Type = "Flat Tire"
		in.VehicleType = "Sedan"
		in.Description = "front left tire burst"
	}
	r, err := e.registry.Create(context.Background(), requesterID, in)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

func (e *testEnv) capacities(t *testing.T, id string) (int, int) {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a.CapacityPrimary, a.CapacitySecondary
}
