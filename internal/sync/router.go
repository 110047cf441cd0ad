// Package sync turns inbound server frames into state changes of the
// conversation store, the contact directory and the notification queue,
// and loads conversation history on demand.
package sync

import (
	"fmt"
	"strconv"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/directory"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/wire"
	"go.uber.org/zap"
)

// Router dispatches inbound frames by action code. It is driven by the
// connection's read loop and never sees two frames at once.
type Router struct {
	session   *session.Session
	history   *history.Store
	directory *directory.Directory
	queue     *notify.Queue
	clock     clock.Clock
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewRouter creates a router over the given stores.
func NewRouter(sess *session.Session, h *history.Store, d *directory.Directory, q *notify.Queue,
	clk clock.Clock, b *bus.Bus, logger *zap.Logger) *Router {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		session:   sess,
		history:   h,
		directory: d,
		queue:     q,
		clock:     clk,
		bus:       b,
		logger:    logger,
	}
}

// OnFrame handles one raw frame. Malformed or unusable frames are logged
// and dropped.
func (r *Router) OnFrame(raw []byte) {
	f, err := wire.Decode(raw)
	if err != nil {
		r.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(raw)))
		return
	}

	switch f.Action {
	case wire.ActionPresence:
		r.logger.Debug("presence acknowledged")
	case wire.ActionChat:
		r.onChat(f)
	case wire.ActionStatus:
		r.onStatus(f)
	case wire.ActionNotice:
		r.onNotice(f)
	case wire.ActionGroupResult:
		r.onGroupResult(f)
	case wire.ActionRequest:
		r.onRequest(f)
	default:
		r.logger.Debug("ignoring frame", zap.Stringer("action", f.Action))
	}
}

// inbound is the union of what a chat frame may carry in its record and
// chatMsg parts. Record fields win.
type inbound struct {
	kind        chat.Kind
	sender      int64
	receiver    int64
	groupID     int64
	content     string
	clientMsgID string
	serverID    int64
	createdAt   string
	confirmed   bool
}

func parseChat(f *wire.Frame) (inbound, bool) {
	var in inbound
	rec, cm := f.Message, f.ChatMsg
	if rec == nil && cm == nil {
		return in, false
	}
	var kinds []wire.Num
	kinds = append(kinds, f.Type)
	if rec != nil {
		in.sender = int64(rec.Sender)
		in.receiver = int64(rec.Receiver)
		in.groupID = int64(rec.GroupID)
		in.content = rec.Content
		in.clientMsgID = rec.ClientMsgID
		in.serverID = int64(rec.ID)
		in.createdAt = rec.GmtCreate
		in.confirmed = true
		kinds = append(kinds, rec.Type)
	}
	if cm != nil {
		in.sender = firstNonZero(in.sender, int64(cm.SenderID))
		in.receiver = firstNonZero(in.receiver, int64(cm.ReceiverID))
		in.groupID = firstNonZero(in.groupID, int64(cm.GroupID))
		if in.content == "" {
			in.content = cm.Message
		}
		if in.clientMsgID == "" {
			in.clientMsgID = cm.ClientMsgID
		}
		kinds = append(kinds, cm.Type)
	}
	for _, k := range kinds {
		if k != 0 {
			in.kind = chat.Kind(k)
			break
		}
	}
	return in, in.kind.Valid()
}

// firstNonZero returns a unless it is zero.
func firstNonZero(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

// Conversation resolves which conversation an inbound chat message belongs
// to. A personal message belongs to the endpoint that is not the local
// user; a group message to its group id, which our own outbound frames
// carry in the receiver field.
func Conversation(kind chat.Kind, local, sender, receiver, groupID int64) (chat.ID, bool) {
	switch kind {
	case chat.Personal:
		other := sender
		if sender == local {
			other = receiver
		}
		if other == 0 {
			return chat.ID{}, false
		}
		return chat.PersonalID(other), true
	case chat.Group:
		gid := firstNonZero(groupID, receiver)
		if gid == 0 {
			return chat.ID{}, false
		}
		return chat.GroupID(gid), true
	}
	return chat.ID{}, false
}

func (r *Router) onChat(f *wire.Frame) {
	in, ok := parseChat(f)
	if !ok {
		r.logger.Warn("dropping chat frame without a valid kind")
		return
	}
	me := r.session.Identity()
	id, ok := Conversation(in.kind, me.UserID, in.sender, in.receiver, in.groupID)
	if !ok {
		r.logger.Warn("dropping chat frame without a conversation",
			zap.Int64("sender", in.sender), zap.Int64("receiver", in.receiver))
		return
	}

	createdAt, hasTime := wire.ParseTime(in.createdAt)
	fromMe := in.sender != 0 && in.sender == me.UserID
	if fromMe && r.history.Confirm(id, in.clientMsgID, in.content, in.serverID, createdAt) {
		r.logger.Debug("echo confirmed", zap.Stringer("conversation", id), zap.Int64("id", in.serverID))
		return
	}

	msg := chat.Message{
		ClientMsgID: in.clientMsgID,
		SenderID:    in.sender,
		Sender:      r.senderName(f, in.sender, me),
		Avatar:      f.Avatar,
		Content:     in.content,
		Status:      chat.StatusReceived,
	}
	if in.confirmed && in.serverID != 0 {
		msg.ID = in.serverID
	} else {
		msg.ID = r.history.NextLocalID()
	}
	if hasTime {
		msg.CreatedAt = createdAt
	} else {
		msg.CreatedAt = r.clock.Now()
	}
	if fromMe {
		msg.Status = chat.StatusConfirmed
	}
	if err := r.history.Append(id, msg); err != nil {
		r.logger.Warn("history append not persisted", zap.Error(err))
	}

	if !fromMe && !r.directory.IsFocused(id) {
		r.directory.MarkUnread(id)
	}
}

func (r *Router) senderName(f *wire.Frame, sender int64, me session.Identity) string {
	if f.UserName != "" {
		return f.UserName
	}
	if sender == me.UserID && me.UserName != "" {
		return me.UserName
	}
	if c, ok := r.directory.Get(chat.PersonalID(sender)); ok && c.Name != "" {
		return c.Name
	}
	return strconv.FormatInt(sender, 10)
}

func (r *Router) onStatus(f *wire.Frame) {
	bulk, single, err := wire.DecodeStatus(f)
	if err != nil {
		r.logger.Warn("dropping status frame", zap.Error(err))
		return
	}
	if single == nil {
		contacts := make([]chat.Contact, len(bulk))
		for i, item := range bulk {
			contacts[i] = item.Contact()
		}
		r.directory.Replace(contacts)
		r.logger.Info("directory replaced from server push", zap.Int("contacts", len(contacts)))
		return
	}

	changed, name, ok := r.directory.SetOnline(int64(single.UserID), single.Status)
	if !ok {
		r.logger.Debug("presence for unknown contact", zap.Int64("user_id", int64(single.UserID)))
		return
	}
	if !changed {
		return
	}
	if single.Status {
		notify.Info(r.bus, name+" is online")
	} else {
		notify.Info(r.bus, name+" is offline")
	}
}

func (r *Router) onNotice(f *wire.Frame) {
	text, err := wire.DecodeNotice(f)
	if err != nil {
		r.logger.Warn("dropping notice frame", zap.Error(err))
		return
	}
	notify.Info(r.bus, text)
}

func (r *Router) onGroupResult(f *wire.Frame) {
	res, err := wire.DecodeData[wire.GroupResult](f)
	if err != nil {
		r.logger.Warn("dropping group result", zap.Error(err))
		return
	}
	if !res.Succeeded() {
		text := res.Message
		if text == "" {
			text = "Group creation failed"
		}
		notify.Error(r.bus, text)
		return
	}

	gid := int64(res.GroupID)
	r.directory.Upsert(chat.Contact{ID: gid, Kind: chat.Group, Name: res.GroupName})

	if int64(res.CreatorID) == r.session.Identity().UserID {
		notify.Success(r.bus, fmt.Sprintf("Group %q created", res.GroupName))
		return
	}
	creator := res.CreatorName
	if creator == "" {
		creator = strconv.FormatInt(int64(res.CreatorID), 10)
	}
	r.queue.Add(notify.Notification{
		Category:    notify.CategoryGroupInvite,
		Title:       "Added to group",
		Description: fmt.Sprintf("%s added you to %s", creator, res.GroupName),
		SenderID:    int64(res.CreatorID),
		SenderName:  res.CreatorName,
		GroupID:     gid,
		GroupName:   res.GroupName,
	})
	notify.Info(r.bus, fmt.Sprintf("You were added to %s", res.GroupName))
}

func (r *Router) onRequest(f *wire.Frame) {
	req, err := wire.DecodeData[wire.Request](f)
	if err != nil {
		r.logger.Warn("dropping request frame", zap.Error(err))
		return
	}

	var category notify.Category
	switch req.RequestType {
	case wire.RequestTypeFriend:
		category = notify.CategoryFriend
	case wire.RequestTypeGroup:
		category = notify.CategoryGroup
	default:
		r.logger.Warn("dropping request of unknown type", zap.String("request_type", req.RequestType))
		return
	}

	switch req.Kind {
	case wire.RequestKindRequest:
		r.addRequest(category, req)
	case wire.RequestKindResponse:
		r.resolveRequest(category, req)
	default:
		r.logger.Warn("dropping request frame of unknown kind", zap.String("kind", req.Kind))
	}
}

func (r *Router) addRequest(category notify.Category, req wire.Request) {
	name := req.SenderName
	if name == "" {
		name = strconv.FormatInt(int64(req.SenderID), 10)
	}
	n := notify.Notification{
		Category:   category,
		SenderID:   int64(req.SenderID),
		SenderName: req.SenderName,
		GroupID:    int64(req.GroupID),
		GroupName:  req.GroupName,
	}
	if category == notify.CategoryFriend {
		n.Title = "Friend request"
		n.Description = name + " wants to add you as a friend"
	} else {
		n.Title = "Join request"
		n.Description = fmt.Sprintf("%s wants to join %s", name, req.GroupName)
	}
	if req.Message != "" {
		n.Description += ": " + req.Message
	}
	r.queue.Add(n)
}

// resolveRequest handles the answer to a request the local user sent. The
// responder is the user id that is not ours.
func (r *Router) resolveRequest(category notify.Category, req wire.Request) {
	me := r.session.Identity().UserID
	responder, known := int64(req.UserID), req.UserName
	if responder == 0 || responder == me {
		responder, known = int64(req.SenderID), req.SenderName
	}
	name := known
	if name == "" {
		name = strconv.FormatInt(responder, 10)
	}

	var groupID int64
	if category == notify.CategoryGroup {
		groupID = int64(req.GroupID)
	}
	if n := r.queue.Resolve(category, responder, groupID); n > 0 {
		r.logger.Debug("resolved notifications", zap.Int("count", n))
	}

	verb := "declined"
	if req.Accepted {
		verb = "accepted"
	}
	if category == notify.CategoryFriend {
		notify.Info(r.bus, fmt.Sprintf("%s %s your friend request", name, verb))
	} else {
		notify.Info(r.bus, fmt.Sprintf("Your request to join %s was %s", req.GroupName, verb))
	}
	if !req.Accepted {
		return
	}
	if category == notify.CategoryFriend {
		r.directory.Upsert(chat.Contact{ID: responder, Kind: chat.Personal, Name: known})
	} else if groupID != 0 {
		r.directory.Upsert(chat.Contact{ID: groupID, Kind: chat.Group, Name: req.GroupName})
	}
}
