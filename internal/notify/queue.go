// Package notify holds the transient notifications the user acts on
// (friend and group requests, group invitations) and publishes one-off
// notices.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/clock"
)

// Category classifies a notification.
type Category string

const (
	CategoryGroupInvite Category = "group_invite"
	CategoryFriend      Category = "friend"
	CategoryGroup       Category = "group"
)

// Notification is a pending item the user may accept, reject or dismiss.
type Notification struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	SenderID    int64     `json:"senderId,omitempty"`
	SenderName  string    `json:"senderName,omitempty"`
	GroupID     int64     `json:"groupId,omitempty"`
	GroupName   string    `json:"groupName,omitempty"`
}

// Queue stores notifications in memory. Nothing here is persisted.
type Queue struct {
	mu    sync.Mutex
	items []Notification
	clock clock.Clock
	bus   *bus.Bus
}

// NewQueue creates an empty queue.
func NewQueue(clk clock.Clock, b *bus.Bus) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	return &Queue{clock: clk, bus: b}
}

// Add stores n with a fresh id and the current time, and returns it.
func (q *Queue) Add(n Notification) Notification {
	n.ID = uuid.NewString()
	n.CreatedAt = q.clock.Now()

	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()

	q.bus.Publish(bus.Event{Kind: bus.KindNotificationAdded, Payload: n})
	return n
}

// List returns the notifications newest first.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := slices.Clone(q.items)
	slices.Reverse(out)
	return out
}

// Get returns the notification with the given id.
func (q *Queue) Get(id string) (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, n := range q.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

// Remove deletes the notification with the given id.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	i := slices.IndexFunc(q.items, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		q.mu.Unlock()
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.mu.Unlock()

	q.bus.Publish(bus.Event{Kind: bus.KindNotificationRemoved, Payload: id})
	return true
}

// Resolve removes every notification of category from senderID about
// groupID, and returns how many were removed. Zero senderID or groupID
// match any value.
func (q *Queue) Resolve(category Category, senderID, groupID int64) int {
	q.mu.Lock()
	var removed []string
	q.items = slices.DeleteFunc(q.items, func(n Notification) bool {
		match := n.Category == category &&
			(senderID == 0 || n.SenderID == senderID) &&
			(groupID == 0 || n.GroupID == groupID)
		if match {
			removed = append(removed, n.ID)
		}
		return match
	})
	q.mu.Unlock()

	for _, id := range removed {
		q.bus.Publish(bus.Event{Kind: bus.KindNotificationRemoved, Payload: id})
	}
	return len(removed)
}

// Clear removes every notification.
func (q *Queue) Clear() {
	q.mu.Lock()
	removed := q.items
	q.items = nil
	q.mu.Unlock()

	for _, n := range removed {
		q.bus.Publish(bus.Event{Kind: bus.KindNotificationRemoved, Payload: n.ID})
	}
}
