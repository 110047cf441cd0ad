package directory

import (
	"testing"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
)

func seed(d *Directory) {
	d.Replace([]chat.Contact{
		{ID: 3, Kind: chat.Personal, Name: "bob", Online: chat.Bool(false)},
		{ID: 9, Kind: chat.Group, Name: "team"},
		{ID: 9, Kind: chat.Personal, Name: "nine"},
	})
}

func TestReplaceKeepsKindsDistinctAndDedups(t *testing.T) {
	d := New(nil)
	d.Replace([]chat.Contact{
		{ID: 9, Kind: chat.Group, Name: "old"},
		{ID: 9, Kind: chat.Personal, Name: "nine"},
		{ID: 9, Kind: chat.Group, Name: "new"},
	})

	list := d.List()
	if len(list) != 2 {
		t.Fatalf("got %d contacts, want 2", len(list))
	}
	if list[0].Kind != chat.Group || list[0].Name != "new" {
		t.Errorf("first = %+v, want group 9 named new", list[0])
	}
	if c, ok := d.Get(chat.PersonalID(9)); !ok || c.Name != "nine" {
		t.Errorf("personal:9 = %+v, %v", c, ok)
	}
}

func TestReplacePreservesLoadedMembers(t *testing.T) {
	d := New(nil)
	seed(d)
	members := []chat.Member{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	if !d.SetMembers(9, members) {
		t.Fatal("SetMembers on known group failed")
	}

	seed(d)
	c, _ := d.Get(chat.GroupID(9))
	if len(c.Members) != 2 {
		t.Errorf("members after Replace = %v, want 2 preserved", c.Members)
	}
	if c, _ := d.Get(chat.PersonalID(9)); len(c.Members) != 0 {
		t.Errorf("personal:9 picked up group members: %v", c.Members)
	}
}

func TestSetOnlineReportsChangeOnce(t *testing.T) {
	b := bus.New()
	d := New(b)
	seed(d)
	ch, unsub := b.Subscribe(bus.KindContactUpdated, 8)
	defer unsub()

	changed, name, ok := d.SetOnline(3, true)
	if !ok || !changed || name != "bob" {
		t.Fatalf("SetOnline = %v %q %v", changed, name, ok)
	}
	changed, _, ok = d.SetOnline(3, true)
	if !ok || changed {
		t.Errorf("repeated SetOnline changed=%v ok=%v, want false true", changed, ok)
	}
	if len(ch) != 1 {
		t.Errorf("got %d contact.updated events, want 1", len(ch))
	}
	if _, _, ok := d.SetOnline(404, true); ok {
		t.Error("SetOnline on unknown user reported ok")
	}
	// Group 9 shares the numeric id with personal 9 but has no presence.
	d.SetOnline(9, true)
	if g, _ := d.Get(chat.GroupID(9)); g.Online != nil {
		t.Error("presence leaked onto group contact")
	}
}

func TestSetOnlineFromUnknownIsChange(t *testing.T) {
	d := New(nil)
	d.Upsert(chat.Contact{ID: 5, Kind: chat.Personal, Name: "eve"})
	if changed, _, _ := d.SetOnline(5, false); !changed {
		t.Error("unknown -> offline not reported as change")
	}
}

func TestMarkUnreadAndFocus(t *testing.T) {
	d := New(nil)
	seed(d)
	id := chat.GroupID(9)

	d.MarkUnread(id)
	d.MarkUnread(id)
	c, _ := d.Get(id)
	if !c.HasNewMessage || c.Unread != 2 {
		t.Fatalf("after MarkUnread: %+v", c)
	}

	d.Focus(id)
	c, _ = d.Get(id)
	if c.HasNewMessage || c.Unread != 0 {
		t.Errorf("after Focus: %+v", c)
	}
	if !d.IsFocused(id) || d.IsFocused(chat.PersonalID(9)) {
		t.Error("IsFocused does not match on (kind,id)")
	}
	if d.Focused() != id {
		t.Errorf("Focused = %v", d.Focused())
	}
}

func TestSetHasNewMessage(t *testing.T) {
	d := New(nil)
	seed(d)
	if !d.SetHasNewMessage(chat.PersonalID(3), true) {
		t.Fatal("SetHasNewMessage on known contact = false")
	}
	if c, _ := d.Get(chat.PersonalID(3)); !c.HasNewMessage {
		t.Error("flag not set")
	}
	if d.SetHasNewMessage(chat.PersonalID(404), true) {
		t.Error("SetHasNewMessage on unknown contact = true")
	}
}

func TestUpsertMergesAndKeepsUnread(t *testing.T) {
	d := New(nil)
	seed(d)
	d.MarkUnread(chat.PersonalID(3))

	got := d.Upsert(chat.Contact{ID: 3, Kind: chat.Personal, Avatar: "b.png"})
	if got.Name != "bob" || got.Avatar != "b.png" || got.Unread != 1 {
		t.Errorf("merged = %+v", got)
	}
	d.Upsert(chat.Contact{ID: 10, Kind: chat.Group, Name: "new group"})
	if list := d.List(); len(list) != 4 || list[3].Name != "new group" {
		t.Errorf("appended contact missing or misplaced: %+v", list)
	}
}

func TestRemoveReindexes(t *testing.T) {
	d := New(nil)
	seed(d)
	d.Focus(chat.PersonalID(3))
	if !d.Remove(chat.PersonalID(3)) {
		t.Fatal("Remove = false")
	}
	if _, ok := d.Get(chat.PersonalID(3)); ok {
		t.Error("removed contact still present")
	}
	if c, ok := d.Get(chat.PersonalID(9)); !ok || c.Name != "nine" {
		t.Errorf("index broken after remove: %+v %v", c, ok)
	}
	if !d.Focused().IsZero() {
		t.Error("focus survived removal of focused contact")
	}
}

func TestListIsSnapshot(t *testing.T) {
	d := New(nil)
	seed(d)
	list := d.List()
	*list[0].Online = true
	list[0].Name = "changed"
	c, _ := d.Get(chat.PersonalID(3))
	if *c.Online || c.Name != "bob" {
		t.Error("List exposed internal state")
	}
}

func TestReset(t *testing.T) {
	d := New(nil)
	seed(d)
	d.Focus(chat.GroupID(9))
	d.Reset()
	if len(d.List()) != 0 || !d.Focused().IsZero() {
		t.Error("Reset left state behind")
	}
}
