// Package history keeps the per-conversation message lists and persists
// them through the session's durable storage.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/codec"
	"github.com/matheus3301/simchat/internal/session"
	"go.uber.org/zap"
)

// StorageKey is the durable key the whole history map lives under.
const StorageKey = "chatHistory"

// Appended is the payload of message.appended events.
type Appended struct {
	Conversation chat.ID      `json:"conversation"`
	Message      chat.Message `json:"message"`
}

// Updated is the payload of message.updated events.
type Updated struct {
	Conversation chat.ID      `json:"conversation"`
	Message      chat.Message `json:"message"`
}

// Loaded is the payload of message.history_loaded events.
type Loaded struct {
	Conversation chat.ID `json:"conversation"`
	Count        int     `json:"count"`
}

// Store holds conversation histories. Lists are append-ordered; the store
// never reorders or deduplicates entries.
type Store struct {
	mu     sync.Mutex
	convs  map[chat.ID][]chat.Message
	lastID int64
	// epoch advances on Clear; writes computed before a Clear carry the
	// old epoch and are dropped.
	epoch uint64

	storage session.Storage
	clock   clock.Clock
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewStore loads persisted history from storage. A blob that cannot be
// decoded is logged and discarded; the store starts empty.
func NewStore(storage session.Storage, clk clock.Clock, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	s := &Store{
		convs:   make(map[chat.ID][]chat.Message),
		storage: storage,
		clock:   clk,
		bus:     b,
		logger:  logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	if s.storage == nil {
		return
	}
	data, ok, err := s.storage.Get(StorageKey)
	if err != nil {
		s.logger.Warn("failed to read persisted history", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var persisted map[string][]chat.Message
	if err := codec.Unmarshal(data, &persisted); err != nil {
		s.logger.Warn("ignoring undecodable persisted history", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	for key, msgs := range persisted {
		id, err := chat.ParseID(key)
		if err != nil {
			s.logger.Warn("ignoring persisted history with bad key", zap.String("key", key), zap.Error(err))
			continue
		}
		s.convs[id] = msgs
		for _, m := range msgs {
			s.lastID = max(s.lastID, m.ID)
		}
	}
	s.logger.Info("history loaded", zap.Int("conversations", len(s.convs)))
}

// persist writes the full map. Caller must hold s.mu.
func (s *Store) persist() error {
	if s.storage == nil {
		return nil
	}
	out := make(map[string][]chat.Message, len(s.convs))
	for id, msgs := range s.convs {
		out[id.String()] = msgs
	}
	data, err := codec.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.storage.Set(StorageKey, data); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// Append adds msg to the end of conversation id's list, creating the list
// if needed. The message's Conversation field is set to id. The in-memory
// append happens even when persisting fails.
func (s *Store) Append(id chat.ID, msg chat.Message) error {
	s.mu.Lock()
	msg.Conversation = id
	s.convs[id] = append(s.convs[id], msg)
	err := s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist history", zap.Error(err), zap.Stringer("conversation", id))
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageAppended, Payload: Appended{Conversation: id, Message: msg}})
	return err
}

// Get returns a copy of conversation id's list. Unknown conversations yield
// an empty list.
func (s *Store) Get(id chat.ID) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.convs[id]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out
}

// HasHistory reports whether any list exists for id, even an empty one.
func (s *Store) HasHistory(id chat.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[id]
	return ok
}

// Epoch identifies the current contents generation. Capture it before a
// fetch and hand it to ReplaceHistory.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// ReplaceHistory installs msgs as the history of id, but only when no
// history exists yet and the store has not been cleared since epoch was
// read. It reports whether the list was installed.
func (s *Store) ReplaceHistory(epoch uint64, id chat.ID, msgs []chat.Message) (bool, error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping history fetched before clear", zap.Stringer("conversation", id))
		return false, nil
	}
	if _, ok := s.convs[id]; ok {
		s.mu.Unlock()
		return false, nil
	}
	list := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		m.Conversation = id
		list[i] = m
	}
	s.convs[id] = list
	err := s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist history", zap.Error(err), zap.Stringer("conversation", id))
	}
	s.bus.Publish(bus.Event{Kind: bus.KindHistoryLoaded, Payload: Loaded{Conversation: id, Count: len(list)}})
	return true, err
}

// Confirm matches a server-confirmed echo of a locally composed message to
// its pending provisional copy in conversation id. A non-empty clientMsgID
// matches exactly; otherwise the oldest pending message with the same
// content wins. The match takes the server id and time and becomes
// confirmed in place. Confirm reports whether a match was found.
func (s *Store) Confirm(id chat.ID, clientMsgID, content string, serverID int64, createdAt time.Time) bool {
	s.mu.Lock()
	msgs := s.convs[id]
	idx := -1
	for i := range msgs {
		if !msgs[i].Pending() {
			continue
		}
		if clientMsgID != "" {
			if msgs[i].ClientMsgID == clientMsgID {
				idx = i
				break
			}
			continue
		}
		if msgs[i].Content == content {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	m := &msgs[idx]
	if serverID != 0 {
		m.ID = serverID
		s.lastID = max(s.lastID, serverID)
	}
	if !createdAt.IsZero() {
		m.CreatedAt = createdAt
	}
	m.Status = chat.StatusConfirmed
	updated := *m
	err := s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist history", zap.Error(err), zap.Stringer("conversation", id))
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageUpdated, Payload: Updated{Conversation: id, Message: updated}})
	return true
}

// SetStatus changes the delivery status of the message carrying
// clientMsgID. It reports whether the message was found.
func (s *Store) SetStatus(id chat.ID, clientMsgID string, status chat.Status) bool {
	if clientMsgID == "" {
		return false
	}
	s.mu.Lock()
	msgs := s.convs[id]
	idx := -1
	for i := range msgs {
		if msgs[i].ClientMsgID == clientMsgID {
			idx = i
			break
		}
	}
	// A confirmation can overtake the local send result.
	if idx < 0 || msgs[idx].Status == chat.StatusConfirmed {
		s.mu.Unlock()
		return false
	}
	msgs[idx].Status = status
	updated := msgs[idx]
	err := s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist history", zap.Error(err), zap.Stringer("conversation", id))
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageUpdated, Payload: Updated{Conversation: id, Message: updated}})
	return true
}

// NextLocalID returns a provisional message id. Ids are strictly
// increasing for the life of the store and start at the current time in
// milliseconds, above any id already held.
func (s *Store) NextLocalID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := max(s.lastID+1, s.clock.Now().UnixMilli())
	s.lastID = next
	return next
}

// Clear drops every conversation, removes the durable copy and starts a
// new epoch.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[chat.ID][]chat.Message)
	s.epoch++
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Remove(StorageKey); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
