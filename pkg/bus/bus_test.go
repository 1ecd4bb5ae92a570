package bus

import (
	"errors"
	"testing"
)

func TestBus_DeliveryOrderAndExactlyOnce(t *testing.T) {
	b := New()
	defer b.Close()

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		if _, err := b.Subscribe(func(ChangeEvent) {
			order = append(order, name)
		}); err != nil {
			t.Fatalf("Subscribe(%s) failed: %v", name, err)
		}
	}

	const events = 3
	for i := 0; i < events; i++ {
		b.Publish(ChangeEvent{EntityID: "7"})
	}

	if len(order) != 3*events {
		t.Fatalf("deliveries = %d, want %d", len(order), 3*events)
	}
	for i := 0; i < events; i++ {
		got := order[i*3 : i*3+3]
		if got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("event %d delivered in order %v, want [a b c]", i, got)
		}
	}
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	b := New()
	defer b.Close()

	var got []string
	var unsubB func()

	if _, err := b.Subscribe(func(ChangeEvent) {
		got = append(got, "a")
		// Unregister b mid-iteration; it must not be invoked for this event.
		unsubB()
	}); err != nil {
		t.Fatal(err)
	}

	var err error
	unsubB, err = b.Subscribe(func(ChangeEvent) {
		got = append(got, "b")
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Subscribe(func(ChangeEvent) {
		got = append(got, "c")
	}); err != nil {
		t.Fatal(err)
	}

	b.Publish(ChangeEvent{EntityID: "7"})

	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("deliveries = %v, want [a c]", got)
	}

	// b stays gone for later events.
	got = nil
	b.Publish(ChangeEvent{EntityID: "7"})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("second event deliveries = %v, want [a c]", got)
	}
}

func TestBus_SelfUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	calls := 0
	var unsub func()
	var err error
	unsub, err = b.Subscribe(func(ChangeEvent) {
		calls++
		unsub()
	})
	if err != nil {
		t.Fatal(err)
	}

	b.Publish(ChangeEvent{})
	b.Publish(ChangeEvent{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (self-unsubscribed after first event)", calls)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after self-unsubscribe, want 0", b.Len())
	}
}

func TestBus_SubscriberRegisteredDuringPublishNotInvoked(t *testing.T) {
	b := New()
	defer b.Close()

	lateCalls := 0
	if _, err := b.Subscribe(func(ChangeEvent) {
		// Registrations after the snapshot see only later events.
		_, _ = b.Subscribe(func(ChangeEvent) {
			lateCalls++
		})
	}); err != nil {
		t.Fatal(err)
	}

	b.Publish(ChangeEvent{})
	if lateCalls != 0 {
		t.Errorf("late subscriber invoked %d times for the event it was registered during", lateCalls)
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := New()
	defer b.Close()

	unsub, err := b.Subscribe(func(ChangeEvent) {})
	if err != nil {
		t.Fatal(err)
	}

	unsub()
	unsub()

	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestBus_Closed(t *testing.T) {
	b := New()
	b.Close()

	if _, err := b.Subscribe(func(ChangeEvent) {}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe on closed bus: err = %v, want ErrBusClosed", err)
	}

	// Publish on a closed bus is dropped, not a panic.
	b.Publish(ChangeEvent{EntityID: "7"})
}

func TestBus_EventPayloadPassedThrough(t *testing.T) {
	b := New()
	defer b.Close()

	var got ChangeEvent
	if _, err := b.Subscribe(func(e ChangeEvent) { got = e }); err != nil {
		t.Fatal(err)
	}

	b.Publish(ChangeEvent{
		EntityID:    "7",
		Previous:    map[string]any{"status": "unread"},
		Next:        map[string]any{"status": "read"},
		MetaChanged: true,
	})

	if got.EntityID != "7" || !got.MetaChanged {
		t.Errorf("event = %+v", got)
	}
	if got.Previous["status"] != "unread" || got.Next["status"] != "read" {
		t.Errorf("overlays not passed through: prev %v next %v", got.Previous, got.Next)
	}
}
