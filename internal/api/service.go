package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/connection"
	"github.com/matheus3301/simchat/internal/engine"
	"github.com/matheus3301/simchat/internal/outbox"
	"github.com/matheus3301/simchat/internal/rest"
	"github.com/matheus3301/simchat/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// eventBuffer is the per-stream bus subscription buffer.
const eventBuffer = 256

var errBadRequest = errors.New("bad request")

type handler func(ctx context.Context, req *structpb.Struct) (any, error)

// Service implements EngineServer on top of an engine.
type Service struct {
	engine    *engine.Engine
	session   *session.Session
	clock     clock.Clock
	bus       *bus.Bus
	logger    *zap.Logger
	startedAt time.Time
	handlers  map[string]handler
}

// NewService creates the control API service. Uptime is measured on clk
// from this call.
func NewService(e *engine.Engine, sess *session.Session, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		engine:    e,
		session:   sess,
		clock:     clk,
		bus:       b,
		logger:    logger,
		startedAt: clk.Now(),
	}
	s.handlers = map[string]handler{
		MethodStatus:              s.status,
		MethodConnect:             s.connect,
		MethodDisconnect:          s.disconnect,
		MethodListContacts:        s.listContacts,
		MethodFetchContacts:       s.fetchContacts,
		MethodFetchMembers:        s.fetchMembers,
		MethodSelectConversation:  s.selectConversation,
		MethodMessages:            s.messages,
		MethodSendMessage:         s.sendMessage,
		MethodCreateGroup:         s.createGroup,
		MethodListNotifications:   s.listNotifications,
		MethodAcceptRequest:       s.acceptRequest,
		MethodRejectRequest:       s.rejectRequest,
		MethodDismissNotification: s.dismissNotification,
		MethodClearNotifications:  s.clearNotifications,
		MethodRequestFriend:       s.requestFriend,
		MethodRequestJoin:         s.requestJoin,
		MethodSignOut:             s.signOut,
	}
	return s
}

// Invoke dispatches a unary call by method name.
func (s *Service) Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	h, ok := s.handlers[method]
	if !ok {
		return nil, grpcstatus.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	resp, err := h(ctx, req)
	if err != nil {
		s.logger.Debug("call failed", zap.String("method", method), zap.Error(err))
		return nil, toStatus(err)
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%s: %v", method, err)
	}
	return out, nil
}

// WatchEvents streams bus events whose kind starts with the requested
// namespace until the client goes away. Slow clients lose events rather
// than stall the engine.
func (s *Service) WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	var in WatchRequest
	if err := fromStruct(req, &in); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}

	ch, unsub := s.bus.Subscribe(in.Namespace, eventBuffer)
	defer unsub()
	s.logger.Debug("event stream opened", zap.String("namespace", in.Namespace))
	defer func() {
		s.logger.Debug("event stream closed",
			zap.String("namespace", in.Namespace),
			zap.Uint64("bus_dropped", s.bus.Dropped()))
	}()

	for {
		select {
		case evt := <-ch:
			msg, err := s.eventStruct(evt)
			if err != nil {
				s.logger.Warn("drop unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *Service) eventStruct(evt bus.Event) (*structpb.Struct, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, err
	}
	return toStruct(Event{
		ID:               uuid.NewString(),
		Profile:          s.session.Name,
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Payload:          payload,
	})
}

func decode(req *structpb.Struct, v any) error {
	if err := fromStruct(req, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseConversation(text string) (chat.ID, error) {
	id, err := chat.ParseID(text)
	if err != nil {
		return chat.ID{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return id, nil
}

func (s *Service) status(_ context.Context, _ *structpb.Struct) (any, error) {
	id := s.session.Identity()
	resp := StatusResponse{
		Profile:       s.session.Name,
		State:         string(s.engine.State()),
		Connected:     s.engine.Connected(),
		UserID:        id.UserID,
		UserName:      id.UserName,
		Contacts:      len(s.engine.Contacts()),
		Notifications: len(s.engine.Notifications()),
		UptimeMs:      s.clock.Now().Sub(s.startedAt).Milliseconds(),
	}
	if focused := s.engine.Focused(); !focused.IsZero() {
		resp.Focused = focused.String()
	}
	return resp, nil
}

func (s *Service) connect(_ context.Context, _ *structpb.Struct) (any, error) {
	if err := s.engine.Connect(); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) disconnect(ctx context.Context, _ *structpb.Struct) (any, error) {
	if err := s.engine.Disconnect(ctx); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) listContacts(_ context.Context, _ *structpb.Struct) (any, error) {
	return ContactsResponse{Contacts: s.engine.Contacts()}, nil
}

func (s *Service) fetchContacts(ctx context.Context, _ *structpb.Struct) (any, error) {
	contacts, err := s.engine.FetchContacts(ctx)
	if err != nil {
		return nil, err
	}
	return ContactsResponse{Contacts: contacts}, nil
}

func (s *Service) fetchMembers(ctx context.Context, req *structpb.Struct) (any, error) {
	var in GroupRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.GroupID == 0 {
		return nil, fmt.Errorf("%w: groupId is required", errBadRequest)
	}
	members, err := s.engine.FetchMembers(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	return MembersResponse{GroupID: in.GroupID, Members: members}, nil
}

func (s *Service) selectConversation(ctx context.Context, req *structpb.Struct) (any, error) {
	var in ConversationRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := parseConversation(in.Conversation)
	if err != nil {
		return nil, err
	}
	msgs, err := s.engine.SelectConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return MessagesResponse{Conversation: id.String(), Messages: msgs}, nil
}

// messages returns the history of the requested conversation, or of the
// focused one when none is named.
func (s *Service) messages(_ context.Context, req *structpb.Struct) (any, error) {
	var in ConversationRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Conversation == "" {
		resp := MessagesResponse{Messages: s.engine.FocusedMessages()}
		if focused := s.engine.Focused(); !focused.IsZero() {
			resp.Conversation = focused.String()
		}
		return resp, nil
	}
	id, err := parseConversation(in.Conversation)
	if err != nil {
		return nil, err
	}
	return MessagesResponse{Conversation: id.String(), Messages: s.engine.Messages(id)}, nil
}

func (s *Service) sendMessage(ctx context.Context, req *structpb.Struct) (any, error) {
	var in SendMessageRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := parseConversation(in.Conversation)
	if err != nil {
		return nil, err
	}
	msg, err := s.engine.SendMessage(ctx, in.Content, id.ID, id.Kind)
	if err != nil {
		return nil, err
	}
	return MessageResponse{Message: msg}, nil
}

func (s *Service) createGroup(ctx context.Context, req *structpb.Struct) (any, error) {
	var in CreateGroupRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.engine.CreateGroup(ctx, in.Name, in.MemberIDs); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) listNotifications(_ context.Context, _ *structpb.Struct) (any, error) {
	return NotificationsResponse{Notifications: s.engine.Notifications()}, nil
}

func (s *Service) acceptRequest(ctx context.Context, req *structpb.Struct) (any, error) {
	var in NotificationRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.engine.AcceptRequest(ctx, in.ID); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) rejectRequest(ctx context.Context, req *structpb.Struct) (any, error) {
	var in NotificationRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.engine.RejectRequest(ctx, in.ID); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) dismissNotification(_ context.Context, req *structpb.Struct) (any, error) {
	var in NotificationRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if !s.engine.DismissNotification(in.ID) {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownNotification, in.ID)
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) clearNotifications(_ context.Context, _ *structpb.Struct) (any, error) {
	s.engine.ClearNotifications()
	return AckResponse{OK: true}, nil
}

func (s *Service) requestFriend(ctx context.Context, req *structpb.Struct) (any, error) {
	var in UserRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.engine.RequestFriend(ctx, in.UserID); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) requestJoin(ctx context.Context, req *structpb.Struct) (any, error) {
	var in GroupRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.engine.RequestJoin(ctx, in.GroupID); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

func (s *Service) signOut(ctx context.Context, _ *structpb.Struct) (any, error) {
	if err := s.engine.SignOut(ctx); err != nil {
		return nil, err
	}
	return AckResponse{OK: true}, nil
}

// toStatus maps engine errors onto gRPC status codes.
func toStatus(err error) error {
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, outbox.ErrNotConnected),
		errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, outbox.ErrNoIdentity):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, outbox.ErrEmptyMessage),
		errors.Is(err, outbox.ErrInvalidTarget),
		errors.Is(err, outbox.ErrInvalidGroup),
		errors.Is(err, errBadRequest):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrUnknownNotification):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case rest.IsUnauthorized(err):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.As(err, &apiErr):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
