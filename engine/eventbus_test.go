package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"runstreak/core"
)

func TestEventBusSyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	var got int
	unsub := bus.Subscribe(core.EventBailoutUsed, func(_ context.Context, e core.Event) { got++ })

	bus.Publish(context.Background(), core.NewBailoutUsed("u", time.Now(), 3))
	if got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}

	unsub()
	bus.Publish(context.Background(), core.NewBailoutUsed("u", time.Now(), 2))
	if got != 1 {
		t.Fatal("unsubscribed handler still invoked")
	}
}

func TestEventBusAsyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()

	var got int32
	bus.Subscribe(core.EventGoalMissed, func(_ context.Context, e core.Event) { atomic.AddInt32(&got, 1) })

	bus.Publish(context.Background(), core.Event{Type: core.EventGoalMissed, UserID: "u"})

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&got) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("async event never delivered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	var got int
	bus.SubscribeAll(func(_ context.Context, e core.Event) { got++ })

	for _, typ := range core.AllEventTypes {
		bus.Publish(context.Background(), core.Event{Type: typ, UserID: "u"})
	}
	if got != len(core.AllEventTypes) {
		t.Fatalf("expected %d deliveries, got %d", len(core.AllEventTypes), got)
	}
}
