package notify

import (
	"testing"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAddAssignsIDAndTime(t *testing.T) {
	clk := clock.Fake(epoch)
	q := NewQueue(clk, nil)

	a := q.Add(Notification{Category: CategoryFriend, SenderID: 3})
	clk.Advance(time.Second)
	b := q.Add(Notification{Category: CategoryFriend, SenderID: 4})

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	if !a.CreatedAt.Equal(epoch) || !b.CreatedAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("times = %v, %v", a.CreatedAt, b.CreatedAt)
	}
}

func TestListNewestFirst(t *testing.T) {
	q := NewQueue(clock.Fake(epoch), nil)
	for _, title := range []string{"first", "second", "third"} {
		q.Add(Notification{Category: CategoryGroup, Title: title})
	}
	list := q.List()
	if len(list) != 3 || list[0].Title != "third" || list[2].Title != "first" {
		t.Errorf("order = %v", list)
	}
}

func TestRemoveAndGet(t *testing.T) {
	b := bus.New()
	q := NewQueue(clock.Fake(epoch), b)
	ch, unsub := b.Subscribe(bus.KindNotificationRemoved, 4)
	defer unsub()

	n := q.Add(Notification{Category: CategoryGroupInvite, GroupID: 9})
	if _, ok := q.Get(n.ID); !ok {
		t.Fatal("Get after Add failed")
	}
	if !q.Remove(n.ID) {
		t.Fatal("Remove = false")
	}
	if q.Remove(n.ID) {
		t.Error("second Remove = true")
	}
	if _, ok := q.Get(n.ID); ok {
		t.Error("Get after Remove succeeded")
	}
	select {
	case evt := <-ch:
		if evt.Payload != n.ID {
			t.Errorf("removed payload = %v, want %s", evt.Payload, n.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification.removed")
	}
}

func TestResolve(t *testing.T) {
	q := NewQueue(clock.Fake(epoch), nil)
	q.Add(Notification{Category: CategoryFriend, SenderID: 3})
	q.Add(Notification{Category: CategoryFriend, SenderID: 3})
	q.Add(Notification{Category: CategoryFriend, SenderID: 4})
	q.Add(Notification{Category: CategoryGroup, SenderID: 3, GroupID: 9})

	if n := q.Resolve(CategoryFriend, 3, 0); n != 2 {
		t.Errorf("Resolve(friend,3) = %d, want 2", n)
	}
	if n := q.Resolve(CategoryGroup, 0, 8); n != 0 {
		t.Errorf("Resolve(group,_,8) = %d, want 0", n)
	}
	if n := q.Resolve(CategoryGroup, 0, 9); n != 1 {
		t.Errorf("Resolve(group,_,9) = %d, want 1", n)
	}
	if list := q.List(); len(list) != 1 || list[0].SenderID != 4 {
		t.Errorf("remaining = %+v", list)
	}
}

func TestClear(t *testing.T) {
	q := NewQueue(clock.Fake(epoch), nil)
	q.Add(Notification{Category: CategoryFriend})
	q.Add(Notification{Category: CategoryGroup})
	q.Clear()
	if len(q.List()) != 0 {
		t.Error("Clear left notifications")
	}
}

func TestNoticeHelpers(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notice.", 8)
	defer unsub()

	Info(b, "i")
	Success(b, "s")
	Error(b, "e")
	Info(nil, "dropped")

	want := []struct {
		kind  string
		level Level
		text  string
	}{
		{bus.KindNoticeInfo, LevelInfo, "i"},
		{bus.KindNoticeSuccess, LevelSuccess, "s"},
		{bus.KindNoticeError, LevelError, "e"},
	}
	for _, w := range want {
		select {
		case evt := <-ch:
			n, ok := evt.Payload.(Notice)
			if evt.Kind != w.kind || !ok || n.Level != w.level || n.Text != w.text {
				t.Errorf("event = %s %+v, want %s %s %s", evt.Kind, evt.Payload, w.kind, w.level, w.text)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for notice")
		}
	}
}
