package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

func TestMemoryAccountRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetAccount(ctx, "acc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	a := &account.Account{ID: "acc-1", Kind: account.KindHospital, Name: "City Hospital", Email: "h@example.com"}
	if err := m.SaveAccount(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "City Hospital" {
		t.Fatalf("name = %q", got.Name)
	}

	// 返回的是副本，改它不影响存储
	got.Name = "mutated"
	again, _ := m.GetAccount(ctx, "acc-1")
	if again.Name != "City Hospital" {
		t.Fatal("stored account mutated through returned pointer")
	}
}

func TestMemoryRequestLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r := &emergency.Request{ID: "req-1", Domain: emergency.DomainMedical, Status: emergency.StatusPending, RequesterID: "civ-1"}
	if err := m.CreateRequest(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateRequest(ctx, r); err == nil {
		t.Fatal("duplicate create accepted")
	}

	r.Status = emergency.StatusAccepted
	r.ResponderID = "hosp-1"
	if err := m.SaveRequest(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != emergency.StatusAccepted || got.ResponderID != "hosp-1" {
		t.Fatalf("got = %+v", got)
	}

	if err := m.DeleteRequest(ctx, "req-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
	if _, err := m.GetRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListRequestsFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed := []emergency.Request{
		{ID: "a", Domain: emergency.DomainMedical, Status: emergency.StatusPending, RequesterID: "civ-1"},
		{ID: "b", Domain: emergency.DomainMedical, Status: emergency.StatusAccepted, RequesterID: "civ-1", ResponderID: "hosp-1"},
		{ID: "c", Domain: emergency.DomainVehicle, Status: emergency.StatusPending, RequesterID: "civ-2"},
	}
	for i := range seed {
		if err := m.CreateRequest(ctx, &seed[i]); err != nil {
			t.Fatalf("seed %s: %v", seed[i].ID, err)
		}
	}

	cases := []struct {
		name   string
		filter RequestFilter
		want   []string
	}{
		{"pending medical unbound", RequestFilter{Domain: emergency.DomainMedical, Status: emergency.StatusPending, ResponderID: Unbound()}, []string{"a"}},
		{"accepted by responder", RequestFilter{Status: emergency.StatusAccepted, ResponderID: Responder("hosp-1")}, []string{"b"}},
		{"by requester", RequestFilter{RequesterID: "civ-1"}, []string{"a", "b"}},
		{"no filter", RequestFilter{}, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.ListRequests(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			ids := map[string]bool{}
			for _, r := range got {
				ids[r.ID] = true
			}
			for _, id := range tc.want {
				if !ids[id] {
					t.Fatalf("missing id %s in %v", id, ids)
				}
			}
		})
	}
}

func TestMemoryTxRollback(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a := &account.Account{ID: "hosp-1", Kind: account.KindHospital, Name: "H", Email: "h@example.com", CapacityPrimary: 2}
	if err := m.SaveAccount(ctx, a); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := fmt.Errorf("boom")
	err := m.InTx(ctx, func(tx Store) error {
		got, err := tx.GetAccount(ctx, "hosp-1")
		if err != nil {
			return err
		}
		got.CapacityPrimary = 0
		if err := tx.SaveAccount(ctx, got); err != nil {
			return err
		}
		if err := tx.CreateRequest(ctx, &emergency.Request{ID: "req-1", Domain: emergency.DomainMedical, Status: emergency.StatusPending, RequesterID: "civ-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	// 整体回滚：写入全部撤销
	got, err := m.GetAccount(ctx, "hosp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CapacityPrimary != 2 {
		t.Fatalf("capacity = %d, want 2 after rollback", got.CapacityPrimary)
	}
	if _, err := m.GetRequest(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("request survived rollback: err = %v", err)
	}
}

func TestMemoryTxCommit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.InTx(ctx, func(tx Store) error {
		return tx.CreateRequest(ctx, &emergency.Request{ID: "req-1", Domain: emergency.DomainVehicle, Status: emergency.StatusPending, RequesterID: "civ-1"})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if _, err := m.GetRequest(ctx, "req-1"); err != nil {
		t.Fatalf("request missing after commit: %v", err)
	}
}

func TestMemoryFormUpsertKeepsSubmittedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	f := &intake.Form{ID: "req_civ", RequestID: "req", RequesterID: "civ", FullName: "Asha Rao"}
	if err := m.PutForm(ctx, f); err != nil {
		t.Fatalf("put: %v", err)
	}
	first := f.SubmittedAt
	if first.IsZero() {
		t.Fatal("SubmittedAt not stamped")
	}

	time.Sleep(5 * time.Millisecond)
	f2 := &intake.Form{ID: "req_civ", RequestID: "req", RequesterID: "civ", FullName: "Asha R."}
	if err := m.PutForm(ctx, f2); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := m.GetForm(ctx, "req_civ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FullName != "Asha R." {
		t.Fatalf("payload not overwritten: %q", got.FullName)
	}
	if !got.SubmittedAt.Equal(first) {
		t.Fatalf("SubmittedAt changed on overwrite: %v -> %v", first, got.SubmittedAt)
	}
	if !got.UpdatedAt.After(first) {
		t.Fatal("UpdatedAt not advanced on overwrite")
	}
}
