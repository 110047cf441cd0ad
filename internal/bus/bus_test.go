package bus

import (
	"testing"
	"time"

	"github.com/matheus3301/simchat/internal/clock"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStateChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStateChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStateChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("notice.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageAppended})
	b.Publish(Event{Kind: KindNoticeError})

	select {
	case evt := <-ch:
		if evt.Kind != KindNoticeError {
			t.Errorf("got kind %q, want %s", evt.Kind, KindNoticeError)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("contact.", 10)
	if n := b.Subscribers(); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}
	unsub()
	unsub()
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() after unsubscribe = %d, want 0", n)
	}

	b.Publish(Event{Kind: KindContactUpdated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("notice.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindNoticeInfo})
	b.Publish(Event{Kind: KindNoticeError})

	evt := <-ch
	if evt.Kind != KindNoticeInfo {
		t.Errorf("got %q, want %s", evt.Kind, KindNoticeInfo)
	}
	if d := b.Dropped(); d != 1 {
		t.Errorf("Dropped() = %d, want 1", d)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	before := time.Now()
	b.Publish(Event{Kind: KindHistoryLoaded})

	evt := <-ch
	if evt.Timestamp.Before(before) {
		t.Errorf("timestamp %v not stamped (before %v)", evt.Timestamp, before)
	}
}

func TestPublishUsesBusClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithClock(clock.Fake(at)))
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: KindNoticeInfo})

	if evt := <-ch; !evt.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", evt.Timestamp, at)
	}
}

func TestPublishOnNilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindNoticeInfo})
}
