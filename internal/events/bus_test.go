package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 1)
	unsubscribe := bus.Subscribe(TaskUpdated, func(e Event) {
		received <- e
	})
	defer unsubscribe()

	if err := bus.Publish(context.Background(), NewEvent(TaskUpdated, "payload")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.Type != TaskUpdated {
			t.Errorf("received event type %s", e.Type)
		}
		if e.Payload != "payload" {
			t.Errorf("received payload %v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []EventType
	unsubscribe := bus.Subscribe(TaskCompleted, func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})
	defer unsubscribe()

	ctx := context.Background()
	bus.Publish(ctx, NewEvent(TaskUpdated, nil))
	bus.Publish(ctx, NewEvent(TaskCompleted, nil))
	bus.Publish(ctx, NewEvent(TaskFailed, nil))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != TaskCompleted {
		t.Errorf("expected only TaskCompleted, got %v", got)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	count := make(chan struct{}, 10)
	unsubscribe := bus.SubscribeAll(func(e Event) {
		count <- struct{}{}
	})
	defer unsubscribe()

	ctx := context.Background()
	bus.Publish(ctx, NewEvent(TaskUpdated, nil))
	bus.Publish(ctx, NewEvent(DocumentIngested, nil))

	for i := 0; i < 2; i++ {
		select {
		case <-count:
		case <-time.After(time.Second):
			t.Fatalf("expected 2 events, got %d", i)
		}
	}
}

func TestBus_OrderedDeliveryPerSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	unsubscribe := bus.Subscribe(TaskUpdated, func(e Event) {
		mu.Lock()
		got = append(got, e.Payload.(int))
		if len(got) == 100 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := bus.Publish(ctx, NewEvent(TaskUpdated, i)); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not all delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("delivery out of order at %d: got %d", i, v)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 4)
	unsubscribe := bus.Subscribe(TaskUpdated, func(e Event) {
		received <- e
	})

	ctx := context.Background()
	bus.Publish(ctx, NewEvent(TaskUpdated, nil))
	<-received

	unsubscribe()
	bus.Publish(ctx, NewEvent(TaskUpdated, nil))

	select {
	case <-received:
		t.Error("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	err := bus.Publish(context.Background(), NewEvent(TaskUpdated, nil))
	if err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}
