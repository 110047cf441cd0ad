package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/simchat/internal/chat"
)

// ContactItem is one element of a bulk status push.
type ContactItem struct {
	ID     Num    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Online *bool  `json:"online,omitempty"`
	Unread int    `json:"unread,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Contact converts the item to a directory contact. Items without a type
// are personal.
func (c ContactItem) Contact() chat.Contact {
	kind := chat.Personal
	if k, err := chat.ParseKind(c.Type); err == nil {
		kind = k
	}
	out := chat.Contact{
		ID:     int64(c.ID),
		Kind:   kind,
		Name:   c.Name,
		Avatar: c.Avatar,
		Unread: c.Unread,
	}
	if kind == chat.Personal && c.Online != nil {
		out.Online = chat.Bool(*c.Online)
	}
	return out
}

// StatusUpdate is a single presence change, and the payload of the
// presence-offline frame.
type StatusUpdate struct {
	UserID Num  `json:"userId"`
	Status bool `json:"status"`
}

// DecodeStatus interprets the data of a status frame. An array is a bulk
// directory replacement; an object is a single presence change.
func DecodeStatus(f *Frame) (bulk []ContactItem, single *StatusUpdate, err error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: status frame has no data", ErrMalformed)
	}
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &bulk); err != nil {
			return nil, nil, fmt.Errorf("%w: bulk status: %v", ErrMalformed, err)
		}
		return bulk, nil, nil
	case '{':
		var u StatusUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, nil, fmt.Errorf("%w: status update: %v", ErrMalformed, err)
		}
		return nil, &u, nil
	}
	return nil, nil, fmt.Errorf("%w: status data is neither array nor object", ErrMalformed)
}

// DecodeNotice extracts the text of a server notice: a bare string, or an
// object with "content" or "message".
func DecodeNotice(f *Frame) (string, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("%w: notice: %v", ErrMalformed, err)
		}
		return s, nil
	}
	p, err := DecodeData[struct {
		Content string `json:"content"`
		Message string `json:"message"`
	}](f)
	if err != nil {
		return "", err
	}
	if p.Content != "" {
		return p.Content, nil
	}
	if p.Message != "" {
		return p.Message, nil
	}
	return "", fmt.Errorf("%w: notice without text", ErrMalformed)
}

// GroupResult is the server's answer to a group creation, sent to the
// creator and to every added member.
type GroupResult struct {
	Success     *bool  `json:"success,omitempty"`
	GroupID     Num    `json:"groupId"`
	GroupName   string `json:"groupName"`
	CreatorID   Num    `json:"creatorId"`
	CreatorName string `json:"creatorName,omitempty"`
	MemberIDs   []Num  `json:"memberIds,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Succeeded treats a missing success flag as success when a group id was
// assigned.
func (g GroupResult) Succeeded() bool {
	if g.Success != nil {
		return *g.Success
	}
	return g.GroupID != 0
}

// CreateGroup is the outbound payload of a group creation.
type CreateGroup struct {
	GroupName string `json:"groupName"`
	OwnerID   Num    `json:"ownerId"`
	MemberIDs []Num  `json:"memberIds"`
}

// Request kinds and types for action 6.
const (
	RequestKindRequest  = "request"
	RequestKindResponse = "response"

	RequestTypeFriend = "friend"
	RequestTypeGroup  = "group"
)

// Request is the payload of friend and group-join flows, in both
// directions.
type Request struct {
	Kind        string `json:"kind"`
	RequestType string `json:"requestType"`
	SenderID    Num    `json:"senderId,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	UserID      Num    `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	GroupID     Num    `json:"groupId,omitempty"`
	GroupName   string `json:"groupName,omitempty"`
	Accepted    bool   `json:"accepted"`
	Message     string `json:"message,omitempty"`
}

// ChatMessage converts a server record to a history entry of conversation
// conv. The sender is shown by id until a display name is known.
func (r *Record) ChatMessage(conv chat.ID, status chat.Status) chat.Message {
	created, _ := ParseTime(r.GmtCreate)
	return chat.Message{
		ID:           int64(r.ID),
		ClientMsgID:  r.ClientMsgID,
		SenderID:     int64(r.Sender),
		Sender:       strconv.FormatInt(int64(r.Sender), 10),
		Conversation: conv,
		Content:      r.Content,
		CreatedAt:    created,
		Status:       status,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses the server's creation timestamps.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
