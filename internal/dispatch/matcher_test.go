package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherAcceptMedical(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedHospital(t, "hosp-1", 3, 2)
	r := env.createRequest(t, "civ-1", emergency.DomainMedical)
	ctx := context.Background()

	got, err := env.matcher.Accept(ctx, "hosp-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusAccepted, got.Status)
	assert.Equal(t, "hosp-1", got.ResponderID)
	require.NotNil(t, got.AcceptedAt)

	// 受理同时各扣一单位
	p, s := env.capacities(t, "hosp-1")
	assert.Equal(t, 2, p)
	assert.Equal(t, 1, s)

	// 离开 pending 列表，进入该责任方的 accepted 列表
	pending, err := env.registry.ListPending(ctx, emergency.DomainMedical)
	require.NoError(t, err)
	assert.Empty(t, pending)
	mine, err := env.registry.ListAccepted(ctx, emergency.DomainMedical, "hosp-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestMatcherAcceptVehicle(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedMechanic(t, "mech-1", 1, 1)
	r := env.createRequest(t, "civ-1", emergency.DomainVehicle)

	got, err := env.matcher.Accept(context.Background(), "mech-1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, "mech-1", got.ResponderID)

	p, s := env.capacities(t, "mech-1")
	assert.Equal(t, 0, p)
	assert.Equal(t, 0, s)
}

// 容量 {1,1} 的责任方受理一单后耗尽，第二单因容量不足被拒，
// 第二单保持 pending 且未绑定。
func TestMatcherCapacityExhaustion(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedHospital(t, "hosp-1", 1, 1)
	ctx := context.Background()

	first := env.createRequest(t, "civ-1", emergency.DomainMedical)
	second := env.createRequest(t, "civ-1", emergency.DomainMedical)

	_, err := env.matcher.Accept(ctx, "hosp-1", first.ID)
	require.NoError(t, err)

	_, err = env.matcher.Accept(ctx, "hosp-1", second.ID)
	require.ErrorIs(t, err, ErrInsufficientCapacity)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, ShortageBoth, capErr.Shortage)

	// 失败的受理不产生任何效果
	got, err := env.registry.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusPending, got.Status)
	assert.False(t, got.Bound())
	p, s := env.capacities(t, "hosp-1")
	assert.Equal(t, 0, p)
	assert.Equal(t, 0, s)
}

// 两个责任方并发受理同一条求助：恰好一方成功，
// 失败方拿到 ErrAlreadyHandled 且容量不被扣减。
func TestMatcherConcurrentAcceptSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedHospital(t, "hosp-1", 5, 5)
	env.seedHospital(t, "hosp-2", 5, 5)
	r := env.createRequest(t, "civ-1", emergency.DomainMedical)
	ctx := context.Background()

	responders := []string{"hosp-1", "hosp-2"}
	errs := make([]error, len(responders))
	var wg sync.WaitGroup
	for i, id := range responders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.matcher.Accept(ctx, id, r.ID)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyHandled):
		default:
			t.Fatalf("responder %s: unexpected error %v", responders[i], err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	got, err := env.registry.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, emergency.StatusAccepted, got.Status)

	// 只有胜者被扣容量
	wp, ws := env.capacities(t, got.ResponderID)
	assert.Equal(t, 4, wp)
	assert.Equal(t, 4, ws)
	loser := "hosp-1"
	if got.ResponderID == "hosp-1" {
		loser = "hosp-2"
	}
	lp, ls := env.capacities(t, loser)
	assert.Equal(t, 5, lp)
	assert.Equal(t, 5, ls)
}

func TestMatcherDomainMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedMechanic(t, "mech-1", 1, 1)
	r := env.createRequest(t, "civ-1", emergency.DomainMedical)

	_, err := env.matcher.Accept(context.Background(), "mech-1", r.ID)
	require.ErrorIs(t, err, ErrDomainMismatch)

	p, s := env.capacities(t, "mech-1")
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, s)
}

func TestMatcherAcceptCancelledRequest(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedHospital(t, "hosp-1", 1, 1)
	ctx := context.Background()

	r := env.createRequest(t, "civ-1", emergency.DomainMedical)
	require.NoError(t, env.registry.Cancel(ctx, "civ-1", r.ID))

	// 取消是硬删除：之后的受理看到的是"不存在"
	_, err := env.matcher.Accept(ctx, "hosp-1", r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatcherAcceptDeclinedRequest(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedMechanic(t, "mech-1", 1, 1)
	env.seedMechanic(t, "mech-2", 1, 1)
	ctx := context.Background()

	r := env.createRequest(t, "civ-1", emergency.DomainVehicle)
	_, err := env.registry.Decline(ctx, "mech-1", r.ID)
	require.NoError(t, err)

	_, err = env.matcher.Accept(ctx, "mech-2", r.ID)
	assert.ErrorIs(t, err, ErrAlreadyHandled)
}

func TestMatcherAcceptGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	r := env.createRequest(t, "civ-1", emergency.DomainMedical)
	ctx := context.Background()

	_, err := env.matcher.Accept(ctx, "", r.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = env.matcher.Accept(ctx, "ghost", r.ID)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
