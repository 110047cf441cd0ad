package api

import (
	"encoding/json"

	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/notify"
)

// Requests. Conversations are addressed by their string form, e.g.
// "personal:7" or "group:9".

type ConversationRequest struct {
	Conversation string `json:"conversation,omitempty"`
}

type SendMessageRequest struct {
	Conversation string `json:"conversation"`
	Content      string `json:"content"`
}

type CreateGroupRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"memberIds"`
}

type NotificationRequest struct {
	ID string `json:"id"`
}

type UserRequest struct {
	UserID int64 `json:"userId"`
}

type GroupRequest struct {
	GroupID int64 `json:"groupId"`
}

// WatchRequest selects the events to stream by kind prefix. An empty
// namespace streams everything.
type WatchRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// Responses.

type StatusResponse struct {
	Profile       string `json:"profile"`
	State         string `json:"state"`
	Connected     bool   `json:"connected"`
	UserID        int64  `json:"userId,omitempty"`
	UserName      string `json:"userName,omitempty"`
	Focused       string `json:"focused,omitempty"`
	Contacts      int    `json:"contacts"`
	Notifications int    `json:"notifications"`
	UptimeMs      int64  `json:"uptimeMs"`
}

type AckResponse struct {
	OK bool `json:"ok"`
}

type ContactsResponse struct {
	Contacts []chat.Contact `json:"contacts"`
}

type MembersResponse struct {
	GroupID int64         `json:"groupId"`
	Members []chat.Member `json:"members"`
}

type MessagesResponse struct {
	Conversation string         `json:"conversation"`
	Messages     []chat.Message `json:"messages"`
}

type MessageResponse struct {
	Message chat.Message `json:"message"`
}

type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Event is one streamed bus event. Payload is the event's JSON payload.
type Event struct {
	ID               string          `json:"eventId"`
	Profile          string          `json:"profile"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}
