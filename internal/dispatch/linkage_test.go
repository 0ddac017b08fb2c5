package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptedMedicalRequest(t *testing.T, env *testEnv) *emergency.Request {
	t.Helper()
	env.seedCivilian(t, "civ-1")
	env.seedHospital(t, "hosp-1", 2, 2)
	r := env.createRequest(t, "civ-1", emergency.DomainMedical)
	got, err := env.matcher.Accept(context.Background(), "hosp-1", r.ID)
	require.NoError(t, err)
	return got
}

func TestLinkageSubmitAndRead(t *testing.T) {
	env := newTestEnv(t)
	r := acceptedMedicalRequest(t, env)
	ctx := context.Background()

	form, err := env.linkage.SubmitForm(ctx, "civ-1", r.ID, FormInput{
		FullName:      "Asha Rao",
		Age:           "42",
		ContactNumber: "9876543210",
		PrimaryIssue:  "chest pain",
		IsConscious:   "Yes",
		Consent:       "Yes",
	})
	require.NoError(t, err)
	assert.Equal(t, intake.FormID(r.ID, "civ-1"), form.ID)

	// 受理医院按请求+发起人点读到同一份表单
	got, err := env.linkage.Form(ctx, r.ID, "civ-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Asha Rao", got.FullName)
	assert.Equal(t, "chest pain", got.PrimaryIssue)
}

func TestLinkageResubmitOverwrites(t *testing.T) {
	env := newTestEnv(t)
	r := acceptedMedicalRequest(t, env)
	ctx := context.Background()

	_, err := env.linkage.SubmitForm(ctx, "civ-1", r.ID, FormInput{FullName: "Asha Rao", PrimaryIssue: "chest pain"})
	require.NoError(t, err)
	_, err = env.linkage.SubmitForm(ctx, "civ-1", r.ID, FormInput{FullName: "Asha Rao", PrimaryIssue: "cardiac arrest"})
	require.NoError(t, err)

	got, err := env.linkage.Form(ctx, r.ID, "civ-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cardiac arrest", got.PrimaryIssue)
}

func TestLinkageFormNotSubmitted(t *testing.T) {
	env := newTestEnv(t)
	r := acceptedMedicalRequest(t, env)

	got, err := env.linkage.Form(context.Background(), r.ID, "civ-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLinkageSubmitGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedCivilian(t, "civ-1")
	env.seedCivilian(t, "civ-2")
	env.seedHospital(t, "hosp-1", 2, 2)
	env.seedMechanic(t, "mech-1", 2, 2)
	ctx := context.Background()
	in := FormInput{FullName: "Asha Rao"}

	// pending 请求不能提交表单
	pending := env.createRequest(t, "civ-1", emergency.DomainMedical)
	_, err := env.linkage.SubmitForm(ctx, "civ-1", pending.ID, in)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 车辆类请求没有表单通道
	vehicle := env.createRequest(t, "civ-1", emergency.DomainVehicle)
	_, err = env.matcher.Accept(ctx, "mech-1", vehicle.ID)
	require.NoError(t, err)
	_, err = env.linkage.SubmitForm(ctx, "civ-1", vehicle.ID, in)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 非发起人不能提交
	_, err = env.matcher.Accept(ctx, "hosp-1", pending.ID)
	require.NoError(t, err)
	_, err = env.linkage.SubmitForm(ctx, "civ-2", pending.ID, in)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 未登录 / 不存在的请求
	_, err = env.linkage.SubmitForm(ctx, "", pending.ID, in)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.linkage.SubmitForm(ctx, "civ-1", "ghost", in)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkageFormTracker(t *testing.T) {
	env := newTestEnv(t)
	r := acceptedMedicalRequest(t, env)
	ctx := context.Background()

	tracker := env.linkage.NewFormTracker()
	defer tracker.Close()

	accepted, err := env.registry.ListAccepted(ctx, emergency.DomainMedical, "hosp-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Sync(ctx, accepted))
	assert.Equal(t, 1, tracker.Watching())

	// 重复 Sync 不会重建 watch
	require.NoError(t, tracker.Sync(ctx, accepted))
	assert.Equal(t, 1, tracker.Watching())

	_, ok := tracker.Form(r.ID)
	assert.False(t, ok)

	// 提交后表单通过事件抵达 tracker
	_, err = env.linkage.SubmitForm(ctx, "civ-1", r.ID, FormInput{FullName: "Asha Rao"})
	require.NoError(t, err)
	waitForForm(t, tracker, r.ID)

	// 受理集合清空后 watch 被移除
	require.NoError(t, tracker.Sync(ctx, nil))
	assert.Equal(t, 0, tracker.Watching())
}

func waitForForm(t *testing.T, tracker interface {
	Form(string) (intake.Form, bool)
}, requestID string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if f, ok := tracker.Form(requestID); ok {
			if f.FullName == "" {
				t.Fatal("form arrived without payload")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("form never arrived at tracker")
}
