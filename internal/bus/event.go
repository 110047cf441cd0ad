package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the engine. Subscribers filter by prefix, so
// "notice." receives every notice level.
const (
	KindStateChanged = "conn.state_changed"

	KindMessageAppended = "message.appended"
	KindMessageUpdated  = "message.updated"
	KindHistoryLoaded   = "message.history_loaded"

	KindContactUpdated   = "contact.updated"
	KindContactsReplaced = "contact.replaced"
	KindContactRemoved   = "contact.removed"

	KindNotificationAdded   = "notification.added"
	KindNotificationRemoved = "notification.removed"

	KindNoticeInfo    = "notice.info"
	KindNoticeSuccess = "notice.success"
	KindNoticeError   = "notice.error"
)
