// Package chat holds the domain types shared by every engine component.
package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes personal conversations from group conversations.
// The numeric values match the wire "type" field.
type Kind uint8

const (
	Personal Kind = 1
	Group    Kind = 2
)

// Valid reports whether k is a known conversation kind.
func (k Kind) Valid() bool {
	return k == Personal || k == Group
}

func (k Kind) String() string {
	switch k {
	case Personal:
		return "personal"
	case Group:
		return "group"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind accepts "personal"/"group" or the wire values "1"/"2".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "personal", "1":
		return Personal, nil
	case "group", "2":
		return Group, nil
	}
	return 0, fmt.Errorf("unknown conversation kind %q", s)
}

// ID identifies a conversation. User ids and group ids are drawn from the
// same integer space, so the kind is part of the identity.
type ID struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// PersonalID returns the identity of the personal conversation with userID.
func PersonalID(userID int64) ID { return ID{Kind: Personal, ID: userID} }

// GroupID returns the identity of the group conversation groupID.
func GroupID(groupID int64) ID { return ID{Kind: Group, ID: groupID} }

// String renders the identity as "personal:7" or "group:9".
func (id ID) String() string {
	return id.Kind.String() + ":" + strconv.FormatInt(id.ID, 10)
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool { return id.Kind == 0 && id.ID == 0 }

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	kindText, idText, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, fmt.Errorf("invalid conversation id %q: want <kind>:<id>", s)
	}
	kind, err := ParseKind(kindText)
	if err != nil {
		return ID{}, err
	}
	n, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid conversation id %q: %w", s, err)
	}
	return ID{Kind: kind, ID: n}, nil
}

// Status is the delivery state of a message as far as this client knows.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusReceived  Status = "received"
	StatusConfirmed Status = "confirmed"
)

// Message is one entry of a conversation history.
type Message struct {
	ID           int64     `json:"id"`
	ClientMsgID  string    `json:"clientMsgId,omitempty"`
	SenderID     int64     `json:"senderId"`
	Sender       string    `json:"sender"`
	Avatar       string    `json:"avatar,omitempty"`
	Conversation ID        `json:"conversation"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	Status       Status    `json:"status"`
}

// Pending reports whether the message is a local provisional copy that no
// server-confirmed record has been matched to yet.
func (m *Message) Pending() bool {
	return m.Status == StatusSending || m.Status == StatusSent
}

// Member is a group member.
type Member struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Contact is a directory entry: a user or a group the local user can talk to.
type Contact struct {
	ID            int64    `json:"id"`
	Kind          Kind     `json:"kind"`
	Name          string   `json:"name"`
	Avatar        string   `json:"avatar,omitempty"`
	Online        *bool    `json:"online,omitempty"`
	Unread        int      `json:"unread"`
	HasNewMessage bool     `json:"hasNewMessage"`
	Members       []Member `json:"members,omitempty"`
}

// Conversation returns the identity of the conversation this contact owns.
func (c *Contact) Conversation() ID { return ID{Kind: c.Kind, ID: c.ID} }

// DisplayName falls back to the numeric id when no name is known.
func (c *Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return strconv.FormatInt(c.ID, 10)
}

// Bool returns a pointer to b, for Contact.Online.
func Bool(b bool) *bool { return &b }
