package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the daemon's EngineService.
type Client struct {
	conn grpc.ClientConnInterface
	cc   *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Call invokes a unary method with a JSON-tagged request and decodes the
// response into resp, which may be nil.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	if req == nil {
		req = struct{}{}
	}
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return fromStruct(out, resp)
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.Call(ctx, MethodStatus, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Connect(ctx context.Context) error {
	return c.Call(ctx, MethodConnect, nil, nil)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.Call(ctx, MethodDisconnect, nil, nil)
}

func (c *Client) ListContacts(ctx context.Context) (*ContactsResponse, error) {
	var resp ContactsResponse
	if err := c.Call(ctx, MethodListContacts, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchContacts(ctx context.Context) (*ContactsResponse, error) {
	var resp ContactsResponse
	if err := c.Call(ctx, MethodFetchContacts, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchMembers(ctx context.Context, groupID int64) (*MembersResponse, error) {
	var resp MembersResponse
	if err := c.Call(ctx, MethodFetchMembers, GroupRequest{GroupID: groupID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SelectConversation(ctx context.Context, conversation string) (*MessagesResponse, error) {
	var resp MessagesResponse
	if err := c.Call(ctx, MethodSelectConversation, ConversationRequest{Conversation: conversation}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Messages returns the history of conversation, or of the focused
// conversation when conversation is empty.
func (c *Client) Messages(ctx context.Context, conversation string) (*MessagesResponse, error) {
	var resp MessagesResponse
	if err := c.Call(ctx, MethodMessages, ConversationRequest{Conversation: conversation}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SendMessage(ctx context.Context, conversation, content string) (*MessageResponse, error) {
	var resp MessageResponse
	req := SendMessageRequest{Conversation: conversation, Content: content}
	if err := c.Call(ctx, MethodSendMessage, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []int64) error {
	return c.Call(ctx, MethodCreateGroup, CreateGroupRequest{Name: name, MemberIDs: memberIDs}, nil)
}

func (c *Client) ListNotifications(ctx context.Context) (*NotificationsResponse, error) {
	var resp NotificationsResponse
	if err := c.Call(ctx, MethodListNotifications, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AcceptRequest(ctx context.Context, id string) error {
	return c.Call(ctx, MethodAcceptRequest, NotificationRequest{ID: id}, nil)
}

func (c *Client) RejectRequest(ctx context.Context, id string) error {
	return c.Call(ctx, MethodRejectRequest, NotificationRequest{ID: id}, nil)
}

func (c *Client) DismissNotification(ctx context.Context, id string) error {
	return c.Call(ctx, MethodDismissNotification, NotificationRequest{ID: id}, nil)
}

func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.Call(ctx, MethodClearNotifications, nil, nil)
}

func (c *Client) RequestFriend(ctx context.Context, userID int64) error {
	return c.Call(ctx, MethodRequestFriend, UserRequest{UserID: userID}, nil)
}

func (c *Client) RequestJoin(ctx context.Context, groupID int64) error {
	return c.Call(ctx, MethodRequestJoin, GroupRequest{GroupID: groupID}, nil)
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.Call(ctx, MethodSignOut, nil, nil)
}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// WatchEvents opens an event stream filtered by kind prefix. Cancel ctx to
// close it.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(MethodWatchEvents))
	if err != nil {
		return nil, err
	}
	in, err := toStruct(WatchRequest{Namespace: namespace})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream.
func (s *EventStream) Recv() (*Event, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	var evt Event
	if err := fromStruct(out, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
