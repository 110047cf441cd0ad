package sync

import (
	"testing"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/directory"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/store"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	router    *Router
	history   *history.Store
	directory *directory.Directory
	queue     *notify.Queue
	bus       *bus.Bus
	clock     *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.New()
	clk := clock.Fake(epoch)
	sess := session.New("test", session.Identity{UserID: 42, UserName: "me"}, store.NewMemory())
	h := history.NewStore(sess.Storage, clk, b, zap.NewNop())
	d := directory.New(b)
	q := notify.NewQueue(clk, b)
	return &fixture{
		router:    NewRouter(sess, h, d, q, clk, b, zap.NewNop()),
		history:   h,
		directory: d,
		queue:     q,
		bus:       b,
		clock:     clk,
	}
}

func (f *fixture) feed(frames ...string) {
	for _, raw := range frames {
		f.router.OnFrame([]byte(raw))
	}
}

func TestConversationResolution(t *testing.T) {
	tests := []struct {
		name                      string
		kind                      chat.Kind
		sender, receiver, groupID int64
		want                      chat.ID
		ok                        bool
	}{
		{"personal inbound", chat.Personal, 7, 42, 0, chat.PersonalID(7), true},
		{"personal outbound", chat.Personal, 42, 7, 0, chat.PersonalID(7), true},
		{"personal self", chat.Personal, 42, 42, 0, chat.PersonalID(42), true},
		{"group explicit", chat.Group, 7, 42, 9, chat.GroupID(9), true},
		{"group explicit from me", chat.Group, 42, 3, 9, chat.GroupID(9), true},
		{"group via receiver", chat.Group, 42, 9, 0, chat.GroupID(9), true},
		{"group missing", chat.Group, 7, 0, 0, chat.ID{}, false},
		{"bad kind", chat.Kind(3), 7, 42, 0, chat.ID{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Conversation(tt.kind, 42, tt.sender, tt.receiver, tt.groupID)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Conversation = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestInboundPersonalMessage(t *testing.T) {
	f := newFixture(t)
	f.directory.Replace([]chat.Contact{{ID: 7, Kind: chat.Personal, Name: "alice"}})

	f.feed(`{"action":2,"type":1,"chatMsg":{"senderId":7,"receiverId":42,"message":"hi"}}`)

	msgs := f.history.Get(chat.PersonalID(7))
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("conversation 7 = %+v", msgs)
	}
	if msgs[0].Sender != "alice" || msgs[0].Status != chat.StatusReceived || !msgs[0].CreatedAt.Equal(epoch) {
		t.Errorf("message = %+v", msgs[0])
	}
	c, _ := f.directory.Get(chat.PersonalID(7))
	if !c.HasNewMessage || c.Unread != 1 {
		t.Errorf("contact 7 = %+v, want new message flagged", c)
	}
}

func TestInboundMessageInFocusedConversation(t *testing.T) {
	f := newFixture(t)
	f.directory.Replace([]chat.Contact{{ID: 7, Kind: chat.Personal}})
	f.directory.Focus(chat.PersonalID(7))

	f.feed(`{"action":2,"type":1,"chatMsg":{"senderId":7,"receiverId":42,"message":"hi"}}`)

	c, _ := f.directory.Get(chat.PersonalID(7))
	if c.HasNewMessage || c.Unread != 0 {
		t.Errorf("focused contact flagged: %+v", c)
	}
}

func TestGroupMessageDoesNotTouchPersonalNamesake(t *testing.T) {
	f := newFixture(t)
	f.directory.Replace([]chat.Contact{
		{ID: 9, Kind: chat.Personal, Name: "nine"},
		{ID: 9, Kind: chat.Group, Name: "team"},
	})

	f.feed(`{"action":2,"userName":"bob","message":{"id":501,"sender":3,"groupId":9,"content":"yo","gmtCreate":"2026-01-01 10:00:00","type":2}}`)

	if got := f.history.Get(chat.GroupID(9)); len(got) != 1 || got[0].ID != 501 || got[0].Sender != "bob" {
		t.Fatalf("group:9 = %+v", got)
	}
	if got := f.history.Get(chat.PersonalID(9)); len(got) != 0 {
		t.Errorf("personal:9 got %d messages", len(got))
	}
	if c, _ := f.directory.Get(chat.PersonalID(9)); c.HasNewMessage {
		t.Error("personal namesake flagged")
	}
	if c, _ := f.directory.Get(chat.GroupID(9)); !c.HasNewMessage {
		t.Error("group not flagged")
	}
}

func TestChatKindPrecedence(t *testing.T) {
	f := newFixture(t)
	// Frame type wins over chatMsg type.
	f.feed(`{"action":2,"type":2,"chatMsg":{"senderId":7,"receiverId":42,"groupId":5,"message":"x","type":1}}`)
	if len(f.history.Get(chat.GroupID(5))) != 1 {
		t.Error("frame type did not take precedence")
	}
	// No kind anywhere: dropped.
	f.feed(`{"action":2,"chatMsg":{"senderId":7,"receiverId":42,"message":"lost"}}`)
	if f.history.HasHistory(chat.PersonalID(7)) {
		t.Error("frame without kind was stored")
	}
}

func TestEchoConfirmsProvisionalInPlace(t *testing.T) {
	f := newFixture(t)
	id := chat.GroupID(9)
	_ = f.history.Append(id, chat.Message{ID: 1, ClientMsgID: "c-1", SenderID: 42, Content: "hello", Status: chat.StatusSent})

	f.feed(`{"action":2,"message":{"id":777,"sender":42,"groupId":9,"content":"hello","gmtCreate":"2026-01-01T11:00:00Z","type":2,"clientMsgId":"c-1"}}`)

	got := f.history.Get(id)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (no duplicate)", len(got))
	}
	if got[0].ID != 777 || got[0].Status != chat.StatusConfirmed {
		t.Errorf("message = %+v", got[0])
	}
	if c, ok := f.directory.Get(id); ok && c.HasNewMessage {
		t.Error("own echo flagged as new")
	}
}

func TestEchoWithoutPendingIsAppended(t *testing.T) {
	f := newFixture(t)
	f.feed(`{"action":2,"message":{"id":5,"sender":42,"receiver":7,"content":"from my phone","type":1}}`)
	got := f.history.Get(chat.PersonalID(7))
	if len(got) != 1 || got[0].Status != chat.StatusConfirmed || got[0].Sender != "me" {
		t.Errorf("history = %+v", got)
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	f := newFixture(t)
	f.feed(
		`not json`,
		`{"action":99}`,
		`{"action":3}`,
		`{"action":5,"data":"nope"}`,
		`{"action":2,"type":1}`,
	)
	f.feed(`{"action":2,"type":1,"chatMsg":{"senderId":7,"receiverId":42,"message":"still works"}}`)
	if len(f.history.Get(chat.PersonalID(7))) != 1 {
		t.Error("router stopped processing after malformed frames")
	}
}

func TestPresenceToggleEmitsOneNotice(t *testing.T) {
	f := newFixture(t)
	f.directory.Replace([]chat.Contact{{ID: 7, Kind: chat.Personal, Name: "alice", Online: chat.Bool(false)}})
	ch, unsub := f.bus.Subscribe("notice.", 8)
	defer unsub()

	f.feed(`{"action":3,"data":{"userId":7,"status":true}}`)
	f.feed(`{"action":3,"data":{"userId":7,"status":true}}`)

	c, _ := f.directory.Get(chat.PersonalID(7))
	if c.Online == nil || !*c.Online {
		t.Fatalf("online = %v", c.Online)
	}
	if len(ch) != 1 {
		t.Fatalf("got %d notices, want 1", len(ch))
	}
	evt := <-ch
	if n := evt.Payload.(notify.Notice); n.Text != "alice is online" || evt.Kind != bus.KindNoticeInfo {
		t.Errorf("notice = %s %+v", evt.Kind, n)
	}
}

func TestBulkStatusReplacesDirectory(t *testing.T) {
	f := newFixture(t)
	f.directory.Replace([]chat.Contact{{ID: 100, Kind: chat.Personal, Name: "gone"}})

	f.feed(`{"action":3,"data":[{"id":7,"name":"alice","online":true},{"id":9,"name":"team","type":"group"}]}`)

	list := f.directory.List()
	if len(list) != 2 {
		t.Fatalf("directory = %+v", list)
	}
	if _, ok := f.directory.Get(chat.GroupID(9)); !ok {
		t.Error("group 9 missing")
	}
	if _, ok := f.directory.Get(chat.PersonalID(100)); ok {
		t.Error("stale contact survived bulk replace")
	}
}

func TestServerNoticeIsTransient(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe("notice.", 8)
	defer unsub()

	f.feed(`{"action":4,"data":{"content":"maintenance at 10pm"}}`, `{"action":4,"data":"plain"}`)

	if len(ch) != 2 {
		t.Fatalf("got %d notices, want 2", len(ch))
	}
	if n := (<-ch).Payload.(notify.Notice); n.Text != "maintenance at 10pm" {
		t.Errorf("text = %q", n.Text)
	}
	if len(f.queue.List()) != 0 {
		t.Error("server notice stored as notification")
	}
}

func TestGroupCreatedByMe(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe(bus.KindNoticeSuccess, 4)
	defer unsub()

	f.feed(`{"action":5,"data":{"success":true,"groupId":9,"groupName":"team","creatorId":42}}`)

	if c, ok := f.directory.Get(chat.GroupID(9)); !ok || c.Name != "team" {
		t.Errorf("group contact = %+v, %v", c, ok)
	}
	if len(ch) != 1 {
		t.Errorf("got %d success notices, want 1", len(ch))
	}
	if len(f.queue.List()) != 0 {
		t.Error("creator got an invite notification")
	}
}

func TestGroupInviteFromOthers(t *testing.T) {
	f := newFixture(t)
	f.feed(`{"action":5,"data":{"groupId":9,"groupName":"team","creatorId":7,"creatorName":"alice"}}`)

	if _, ok := f.directory.Get(chat.GroupID(9)); !ok {
		t.Error("group not added to directory")
	}
	list := f.queue.List()
	if len(list) != 1 || list[0].Category != notify.CategoryGroupInvite || list[0].GroupID != 9 {
		t.Fatalf("notifications = %+v", list)
	}
	if list[0].Description != "alice added you to team" {
		t.Errorf("description = %q", list[0].Description)
	}
}

func TestGroupCreationFailure(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe(bus.KindNoticeError, 4)
	defer unsub()

	f.feed(`{"action":5,"data":{"success":false,"message":"name taken"}}`)

	if len(f.directory.List()) != 0 {
		t.Error("failed group added to directory")
	}
	select {
	case evt := <-ch:
		if evt.Payload.(notify.Notice).Text != "name taken" {
			t.Errorf("notice = %+v", evt.Payload)
		}
	default:
		t.Fatal("no error notice")
	}
}

func TestRequestCreatesNotification(t *testing.T) {
	f := newFixture(t)
	f.feed(
		`{"action":6,"data":{"kind":"request","requestType":"friend","senderId":7,"senderName":"alice"}}`,
		`{"action":6,"data":{"kind":"request","requestType":"group","senderId":8,"senderName":"bob","groupId":9,"groupName":"team"}}`,
	)
	list := f.queue.List()
	if len(list) != 2 {
		t.Fatalf("notifications = %+v", list)
	}
	if list[0].Category != notify.CategoryGroup || list[0].Description != "bob wants to join team" {
		t.Errorf("newest = %+v", list[0])
	}
	if list[1].Category != notify.CategoryFriend || list[1].SenderID != 7 {
		t.Errorf("oldest = %+v", list[1])
	}
}

func TestAcceptedFriendResponse(t *testing.T) {
	f := newFixture(t)
	f.feed(`{"action":6,"data":{"kind":"request","requestType":"friend","senderId":7,"senderName":"alice"}}`)
	ch, unsub := f.bus.Subscribe("notice.", 4)
	defer unsub()

	f.feed(`{"action":6,"data":{"kind":"response","requestType":"friend","senderId":42,"userId":7,"userName":"alice","accepted":true}}`)

	if len(f.queue.List()) != 0 {
		t.Error("matching friend notification not resolved")
	}
	if c, ok := f.directory.Get(chat.PersonalID(7)); !ok || c.Name != "alice" {
		t.Errorf("new friend = %+v, %v", c, ok)
	}
	if len(ch) != 1 {
		t.Fatalf("got %d notices", len(ch))
	}
	if n := (<-ch).Payload.(notify.Notice); n.Text != "alice accepted your friend request" {
		t.Errorf("notice = %q", n.Text)
	}
}

func TestDeclinedGroupResponse(t *testing.T) {
	f := newFixture(t)
	f.feed(`{"action":6,"data":{"kind":"response","requestType":"group","senderId":42,"userId":7,"groupId":9,"groupName":"team","accepted":false}}`)
	if _, ok := f.directory.Get(chat.GroupID(9)); ok {
		t.Error("declined group added to directory")
	}
}
