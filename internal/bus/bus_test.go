package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindChatUpdated, Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindChatUpdated {
			t.Errorf("got kind %q, want %q", evt.Kind, KindChatUpdated)
		}
		if evt.Timestamp.IsZero() {
			t.Error("zero timestamp should be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("notify.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindChatUpdated})
	b.Publish(Event{Kind: KindNotify})

	select {
	case evt := <-ch:
		if evt.Kind != KindNotify {
			t.Errorf("got kind %q, want %q", evt.Kind, KindNotify)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The chat event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	unsub()

	b.Publish(Event{Kind: KindChatUpdated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("send.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindSendQueued})
	// Buffer full: dropped instead of blocking the publisher.
	b.Publish(Event{Kind: KindSendAck})

	evt := <-ch
	if evt.Kind != KindSendQueued {
		t.Errorf("got %q, want %q", evt.Kind, KindSendQueued)
	}
}
