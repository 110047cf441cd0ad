// Package outbox composes user-initiated frames. Chat messages are written
// to the conversation store before they are transmitted, so they show up
// immediately with a sending status.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/wire"
	"go.uber.org/zap"
)

var (
	ErrNotConnected  = errors.New("not connected to the server")
	ErrNoIdentity    = errors.New("local identity is unknown")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrInvalidTarget = errors.New("invalid conversation target")
	ErrInvalidGroup  = errors.New("invalid group")
)

// MinGroupMembers is the number of members, besides the owner, a new group
// needs.
const MinGroupMembers = 2

// FrameSender transmits frames to the server.
type FrameSender interface {
	Connected() bool
	Send(ctx context.Context, f *wire.Frame) error
}

// Composer builds and sends outbound frames.
type Composer struct {
	sender  FrameSender
	session *session.Session
	history *history.Store
	clock   clock.Clock
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewComposer creates a composer writing through sender.
func NewComposer(sender FrameSender, sess *session.Session, h *history.Store, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *Composer {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		sender:  sender,
		session: sess,
		history: h,
		clock:   clk,
		bus:     b,
		logger:  logger,
	}
}

// fail publishes err as an error notice and returns it.
func (c *Composer) fail(err error) error {
	notify.Error(c.bus, err.Error())
	return err
}

// ready checks the preconditions every outbound operation shares.
func (c *Composer) ready() (session.Identity, error) {
	if !c.sender.Connected() {
		return session.Identity{}, c.fail(ErrNotConnected)
	}
	me := c.session.Identity()
	if !me.Known() {
		return session.Identity{}, c.fail(ErrNoIdentity)
	}
	return me, nil
}

// SendMessage appends a provisional message to the target conversation and
// transmits it. The returned message carries the final local status: sent,
// or failed when transmission failed. Nothing is retried.
func (c *Composer) SendMessage(ctx context.Context, content string, target int64, kind chat.Kind) (chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return chat.Message{}, c.fail(ErrEmptyMessage)
	}
	if target == 0 || !kind.Valid() {
		return chat.Message{}, c.fail(fmt.Errorf("%w: %s %d", ErrInvalidTarget, kind, target))
	}
	me, err := c.ready()
	if err != nil {
		return chat.Message{}, err
	}

	id := chat.ID{Kind: kind, ID: target}
	sender := me.UserName
	if sender == "" {
		sender = strconv.FormatInt(me.UserID, 10)
	}
	msg := chat.Message{
		ID:          c.history.NextLocalID(),
		ClientMsgID: uuid.NewString(),
		SenderID:    me.UserID,
		Sender:      sender,
		Content:     content,
		CreatedAt:   c.clock.Now(),
		Status:      chat.StatusSending,
	}
	if err := c.history.Append(id, msg); err != nil {
		c.logger.Warn("provisional message not persisted", zap.Error(err))
	}
	msg.Conversation = id

	frame := wire.Chat(wire.ChatMsg{
		SenderID:    wire.Num(me.UserID),
		ReceiverID:  wire.Num(target),
		Message:     content,
		Type:        wire.Num(kind),
		ClientMsgID: msg.ClientMsgID,
	})
	if err := c.sender.Send(ctx, frame); err != nil {
		c.history.SetStatus(id, msg.ClientMsgID, chat.StatusFailed)
		msg.Status = chat.StatusFailed
		c.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", msg.ClientMsgID))
		return msg, c.fail(fmt.Errorf("send message: %w", err))
	}
	c.history.SetStatus(id, msg.ClientMsgID, chat.StatusSent)
	msg.Status = chat.StatusSent
	c.logger.Info("message sent", zap.String("client_msg_id", msg.ClientMsgID), zap.Stringer("conversation", id))
	return msg, nil
}

// CreateGroup asks the server to create a group owned by the local user.
// The outcome arrives later as a group result frame.
func (c *Composer) CreateGroup(ctx context.Context, name string, memberIDs []int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.fail(fmt.Errorf("%w: a name is required", ErrInvalidGroup))
	}
	me, err := c.ready()
	if err != nil {
		return err
	}

	var members []wire.Num
	for _, id := range memberIDs {
		if id == 0 || id == me.UserID || slices.Contains(members, wire.Num(id)) {
			continue
		}
		members = append(members, wire.Num(id))
	}
	if len(members) < MinGroupMembers {
		return c.fail(fmt.Errorf("%w: select at least %d members", ErrInvalidGroup, MinGroupMembers))
	}

	frame, err := wire.WithData(wire.ActionGroupResult, wire.CreateGroup{
		GroupName: name,
		OwnerID:   wire.Num(me.UserID),
		MemberIDs: members,
	})
	if err != nil {
		return c.fail(err)
	}
	if err := c.sender.Send(ctx, frame); err != nil {
		return c.fail(fmt.Errorf("create group: %w", err))
	}
	c.logger.Info("group creation requested", zap.String("name", name), zap.Int("members", len(members)))
	return nil
}

// AcceptRequest answers a friend or join request positively.
func (c *Composer) AcceptRequest(ctx context.Context, n notify.Notification) error {
	return c.respond(ctx, n, true)
}

// RejectRequest declines a friend or join request.
func (c *Composer) RejectRequest(ctx context.Context, n notify.Notification) error {
	return c.respond(ctx, n, false)
}

func (c *Composer) respond(ctx context.Context, n notify.Notification, accepted bool) error {
	var requestType string
	switch n.Category {
	case notify.CategoryFriend:
		requestType = wire.RequestTypeFriend
	case notify.CategoryGroup:
		requestType = wire.RequestTypeGroup
	case notify.CategoryGroupInvite:
		// The server already added us; there is nothing to answer.
		return nil
	default:
		return c.fail(fmt.Errorf("cannot answer notification of category %q", n.Category))
	}
	me, err := c.ready()
	if err != nil {
		return err
	}
	return c.sendRequest(ctx, wire.Request{
		Kind:        wire.RequestKindResponse,
		RequestType: requestType,
		SenderID:    wire.Num(n.SenderID),
		SenderName:  n.SenderName,
		UserID:      wire.Num(me.UserID),
		UserName:    me.UserName,
		GroupID:     wire.Num(n.GroupID),
		GroupName:   n.GroupName,
		Accepted:    accepted,
	})
}

// RequestFriend asks userID to become a contact.
func (c *Composer) RequestFriend(ctx context.Context, userID int64) error {
	if userID == 0 {
		return c.fail(fmt.Errorf("%w: no user", ErrInvalidTarget))
	}
	me, err := c.ready()
	if err != nil {
		return err
	}
	if userID == me.UserID {
		return c.fail(fmt.Errorf("%w: cannot befriend yourself", ErrInvalidTarget))
	}
	return c.sendRequest(ctx, wire.Request{
		Kind:        wire.RequestKindRequest,
		RequestType: wire.RequestTypeFriend,
		SenderID:    wire.Num(me.UserID),
		SenderName:  me.UserName,
		UserID:      wire.Num(userID),
	})
}

// RequestJoin asks the owner of groupID to let the local user in.
func (c *Composer) RequestJoin(ctx context.Context, groupID int64) error {
	if groupID == 0 {
		return c.fail(fmt.Errorf("%w: no group", ErrInvalidTarget))
	}
	me, err := c.ready()
	if err != nil {
		return err
	}
	return c.sendRequest(ctx, wire.Request{
		Kind:        wire.RequestKindRequest,
		RequestType: wire.RequestTypeGroup,
		SenderID:    wire.Num(me.UserID),
		SenderName:  me.UserName,
		GroupID:     wire.Num(groupID),
	})
}

func (c *Composer) sendRequest(ctx context.Context, req wire.Request) error {
	frame, err := wire.WithData(wire.ActionRequest, req)
	if err != nil {
		return c.fail(err)
	}
	if err := c.sender.Send(ctx, frame); err != nil {
		return c.fail(fmt.Errorf("send %s %s: %w", req.RequestType, req.Kind, err))
	}
	c.logger.Info("request sent", zap.String("kind", req.Kind), zap.String("type", req.RequestType))
	return nil
}
