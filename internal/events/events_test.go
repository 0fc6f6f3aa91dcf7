package events

import (
	"encoding/json"
	"testing"
)

func TestBusDelivery(t *testing.T) {
	bus := NewBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventSyncPassCompleted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventSyncPassCompleted, SyncPassPayload{Trigger: "manual", Succeeded: 3})
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventSyncPassCompleted {
		t.Errorf("unexpected event type %s", received.Type)
	}

	var decoded SyncPassPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.Trigger != "manual" || decoded.Succeeded != 3 {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestBusUnrelatedEventNotDelivered(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(EventMutationDeadLettered, func(*Event) error {
		calls++
		return nil
	})

	if err := bus.PublishJSON(EventConnectivityChanged, ConnectivityPayload{Online: true}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no delivery for unrelated event, got %d", calls)
	}
}

func TestBusNilSafePublish(t *testing.T) {
	var bus *Bus
	if err := bus.PublishJSON(EventConnectivityChanged, ConnectivityPayload{}); err != nil {
		t.Fatalf("nil bus publish should be a no-op, got %v", err)
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	first, second := 0, 0
	bus.Subscribe(EventMutationDeadLettered, func(*Event) error { first++; return nil })
	bus.Subscribe(EventMutationDeadLettered, func(*Event) error { second++; return nil })

	if err := bus.PublishJSON(EventMutationDeadLettered, DeadLetterPayload{MutationID: "m-1"}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}
	if first != 1 || second != 1 {
		t.Errorf("expected both subscribers called once, got %d and %d", first, second)
	}
}
