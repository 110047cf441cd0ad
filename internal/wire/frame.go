// Package wire defines the JSON frames exchanged with the message server
// over the WebSocket and the action-code protocol they follow.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Action is the protocol action code carried by every frame.
type Action int

const (
	ActionPresence    Action = 1 // presence announce (outbound) / connection ack (inbound)
	ActionChat        Action = 2
	ActionStatus      Action = 3
	ActionNotice      Action = 4
	ActionGroupResult Action = 5
	ActionRequest     Action = 6
)

func (a Action) Valid() bool { return a >= ActionPresence && a <= ActionRequest }

func (a Action) String() string {
	switch a {
	case ActionPresence:
		return "presence"
	case ActionChat:
		return "chat"
	case ActionStatus:
		return "status"
	case ActionNotice:
		return "notice"
	case ActionGroupResult:
		return "group_result"
	case ActionRequest:
		return "request"
	default:
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
}

// ErrMalformed is wrapped by every decoding failure.
var ErrMalformed = errors.New("malformed frame")

// Num is an integer that decodes from either a JSON number or a numeric
// string. Some clients announce their user id as a string.
type Num int64

func (n *Num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", s, err)
		}
		*n = Num(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Num(v)
	return nil
}

// ChatMsg is the client-composed chat payload.
type ChatMsg struct {
	SenderID    Num    `json:"senderId"`
	ReceiverID  Num    `json:"receiverId,omitempty"`
	GroupID     Num    `json:"groupId,omitempty"`
	Message     string `json:"message,omitempty"`
	Type        Num    `json:"type,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// Record is a server-confirmed chat record.
type Record struct {
	ID          Num    `json:"id"`
	Sender      Num    `json:"sender"`
	Receiver    Num    `json:"receiver,omitempty"`
	GroupID     Num    `json:"groupId,omitempty"`
	Content     string `json:"content"`
	GmtCreate   string `json:"gmtCreate,omitempty"`
	Type        Num    `json:"type,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// Frame is one protocol message, inbound or outbound.
type Frame struct {
	Action   Action          `json:"action"`
	Type     Num             `json:"type,omitempty"`
	ChatMsg  *ChatMsg        `json:"chatMsg,omitempty"`
	UserName string          `json:"userName,omitempty"`
	Avatar   string          `json:"avatar,omitempty"`
	Message  *Record         `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame. Non-JSON input and unknown action codes are
// reported as ErrMalformed.
func Decode(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !f.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %d", ErrMalformed, f.Action)
	}
	return &f, nil
}

// Encode serializes a frame for transmission.
func Encode(f *Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Action, err)
	}
	return b, nil
}

// DecodeData unmarshals the frame's data field into T.
func DecodeData[T any](f *Frame) (T, error) {
	var v T
	if len(f.Data) == 0 || bytes.Equal(bytes.TrimSpace(f.Data), []byte("null")) {
		return v, fmt.Errorf("%w: %s frame has no data", ErrMalformed, f.Action)
	}
	if err := json.Unmarshal(f.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s data: %v", ErrMalformed, f.Action, err)
	}
	return v, nil
}

// WithData builds a frame whose data field is the JSON encoding of v.
func WithData(action Action, v any) (*Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", action, err)
	}
	return &Frame{Action: action, Data: b}, nil
}

// Announce is sent right after the socket opens.
func Announce(userID int64) *Frame {
	return &Frame{Action: ActionPresence, ChatMsg: &ChatMsg{SenderID: Num(userID)}}
}

// Offline is sent before a requested close.
func Offline(userID int64) *Frame {
	f, _ := WithData(ActionStatus, StatusUpdate{UserID: Num(userID), Status: false})
	return f
}

// Chat wraps a composed chat message.
func Chat(msg ChatMsg) *Frame {
	return &Frame{Action: ActionChat, ChatMsg: &msg}
}
