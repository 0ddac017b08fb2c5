package watch

import (
	"context"
	"testing"
	"time"

	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never reached")
}

func TestRequestViewAppliesEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	topic := TopicPending(emergency.DomainMedical)

	view := NewRequestView(hub.Subscribe(topic), []emergency.Request{
		{ID: "req-1", Domain: emergency.DomainMedical, Status: emergency.StatusPending},
	})
	defer view.Close()

	if got := view.Snapshot(); len(got) != 1 || got[0].ID != "req-1" {
		t.Fatalf("initial snapshot = %+v", got)
	}

	hub.Publish(Event{Topic: topic, Type: EventPut, Request: &emergency.Request{
		ID: "req-2", Domain: emergency.DomainMedical, Status: emergency.StatusPending,
	}})
	waitFor(t, func() bool { return len(view.Snapshot()) == 2 })

	hub.Publish(Event{Topic: topic, Type: EventDelete, Request: &emergency.Request{ID: "req-1"}})
	waitFor(t, func() bool {
		s := view.Snapshot()
		return len(s) == 1 && s[0].ID == "req-2"
	})
}

func TestRequestViewChangesSignal(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	topic := TopicRequest("req-1")

	view := NewRequestView(hub.Subscribe(topic), nil)
	defer view.Close()

	hub.Publish(Event{Topic: topic, Type: EventPut, Request: &emergency.Request{ID: "req-1"}})

	select {
	case <-view.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestRequestViewCloseStopsConsumer(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	view := NewRequestView(hub.Subscribe("topic"), nil)
	view.Close() // 返回时消费协程必须已退出

	hub.Publish(Event{Topic: "topic", Type: EventPut, Request: &emergency.Request{ID: "req-1"}})
	if got := view.Snapshot(); len(got) != 0 {
		t.Fatalf("snapshot after close = %+v", got)
	}
}

func TestFormTrackerSync(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	stored := map[string]*intake.Form{}
	load := func(ctx context.Context, requestID, requesterID string) (*intake.Form, error) {
		return stored[intake.FormID(requestID, requesterID)], nil
	}
	tracker := NewFormTracker(hub, load)
	defer tracker.Close()

	accepted := []emergency.Request{
		{ID: "req-1", RequesterID: "civ-1", Status: emergency.StatusAccepted},
		{ID: "req-2", RequesterID: "civ-2", Status: emergency.StatusAccepted},
	}
	if err := tracker.Sync(context.Background(), accepted); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n := tracker.Watching(); n != 2 {
		t.Fatalf("watching = %d, want 2", n)
	}

	// 再次 Sync 同一集合：watch 不重建
	if err := tracker.Sync(context.Background(), accepted); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if n := tracker.Watching(); n != 2 {
		t.Fatalf("watching after resync = %d, want 2", n)
	}

	// 表单通过事件抵达
	key := intake.FormID("req-1", "civ-1")
	hub.Publish(Event{Topic: TopicForm(key), Type: EventPut, Form: &intake.Form{
		ID: key, RequestID: "req-1", RequesterID: "civ-1", FullName: "Asha Rao",
	}})
	waitFor(t, func() bool {
		f, ok := tracker.Form("req-1")
		return ok && f.FullName == "Asha Rao"
	})

	// 移出受理集合后 watch 和缓存的表单一并清理
	if err := tracker.Sync(context.Background(), accepted[1:]); err != nil {
		t.Fatalf("shrink sync: %v", err)
	}
	if n := tracker.Watching(); n != 1 {
		t.Fatalf("watching after shrink = %d, want 1", n)
	}
	if _, ok := tracker.Form("req-1"); ok {
		t.Fatal("form survived watch removal")
	}
}

func TestFormTrackerInitialSnapshot(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	key := intake.FormID("req-1", "civ-1")
	stored := map[string]*intake.Form{
		key: {ID: key, RequestID: "req-1", RequesterID: "civ-1", FullName: "Asha Rao"},
	}
	load := func(ctx context.Context, requestID, requesterID string) (*intake.Form, error) {
		return stored[intake.FormID(requestID, requesterID)], nil
	}
	tracker := NewFormTracker(hub, load)
	defer tracker.Close()

	// 订阅之前已提交的表单通过初始快照读到
	err := tracker.Sync(context.Background(), []emergency.Request{
		{ID: "req-1", RequesterID: "civ-1", Status: emergency.StatusAccepted},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	f, ok := tracker.Form("req-1")
	if !ok || f.FullName != "Asha Rao" {
		t.Fatalf("form = %+v ok=%v, want snapshot loaded", f, ok)
	}
}
