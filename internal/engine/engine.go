// Package engine is the surface presentation layers consume: connection
// status, the focused conversation, contacts and notifications, and every
// user-initiated operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/directory"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/outbox"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/status"
	"github.com/matheus3301/simchat/internal/sync"
	"go.uber.org/zap"
)

// ErrUnknownNotification is returned when acting on a notification id that
// is not queued.
var ErrUnknownNotification = errors.New("unknown notification")

// Connection is the lifecycle part of the connection manager.
type Connection interface {
	Connect()
	Disconnect(ctx context.Context) error
	Connected() bool
	State() status.State
}

// DirectoryFetcher retrieves the contact list and group members.
type DirectoryFetcher interface {
	Contacts(ctx context.Context) ([]chat.Contact, error)
	Members(ctx context.Context, groupID int64) ([]chat.Member, error)
}

// Deps are the components an Engine is assembled from.
type Deps struct {
	Session   *session.Session
	Conn      Connection
	History   *history.Store
	Directory *directory.Directory
	Queue     *notify.Queue
	Composer  *outbox.Composer
	Loader    *sync.Loader
	Fetcher   DirectoryFetcher
	Bus       *bus.Bus
	Logger    *zap.Logger

	// RequestTimeout bounds each contact and member fetch.
	RequestTimeout time.Duration
}

// Engine is the facade over the synchronization components.
type Engine struct {
	session   *session.Session
	conn      Connection
	history   *history.Store
	directory *directory.Directory
	queue     *notify.Queue
	composer  *outbox.Composer
	loader    *sync.Loader
	fetcher   DirectoryFetcher
	timeout   time.Duration
	bus       *bus.Bus
	logger    *zap.Logger
}

// New assembles an engine.
func New(d Deps) *Engine {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = sync.DefaultRequestTimeout
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{
		session:   d.Session,
		conn:      d.Conn,
		history:   d.History,
		directory: d.Directory,
		queue:     d.Queue,
		composer:  d.Composer,
		loader:    d.Loader,
		fetcher:   d.Fetcher,
		timeout:   d.RequestTimeout,
		bus:       d.Bus,
		logger:    d.Logger,
	}
}

func (e *Engine) Connected() bool     { return e.conn.Connected() }
func (e *Engine) State() status.State { return e.conn.State() }

// Connect starts connecting as the session's identity.
func (e *Engine) Connect() error {
	if !e.session.Identity().Known() {
		notify.Error(e.bus, outbox.ErrNoIdentity.Error())
		return outbox.ErrNoIdentity
	}
	e.conn.Connect()
	return nil
}

// Disconnect goes offline without scheduling a reconnection.
func (e *Engine) Disconnect(ctx context.Context) error {
	return e.conn.Disconnect(ctx)
}

// Focused returns the focused conversation, or the zero ID.
func (e *Engine) Focused() chat.ID { return e.directory.Focused() }

// FocusedMessages returns the history of the focused conversation.
func (e *Engine) FocusedMessages() []chat.Message {
	id := e.directory.Focused()
	if id.IsZero() {
		return nil
	}
	return e.history.Get(id)
}

// Messages returns the history of conversation id.
func (e *Engine) Messages(id chat.ID) []chat.Message { return e.history.Get(id) }

func (e *Engine) Contacts() []chat.Contact { return e.directory.List() }

func (e *Engine) Notifications() []notify.Notification { return e.queue.List() }

// SelectConversation focuses id and loads its history the first time. The
// returned messages are whatever the store holds afterwards; on a failed
// fetch that is the (possibly empty) local history alongside the error.
func (e *Engine) SelectConversation(ctx context.Context, id chat.ID) ([]chat.Message, error) {
	if !id.Kind.Valid() || id.ID == 0 {
		return nil, fmt.Errorf("%w: %s", outbox.ErrInvalidTarget, id)
	}
	e.directory.Focus(id)
	_, err := e.loader.Load(ctx, id)
	return e.history.Get(id), err
}

// FetchContacts replaces the directory with the server's contact list. On
// failure an error notice is published and the directory is left as is.
func (e *Engine) FetchContacts(ctx context.Context) ([]chat.Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contacts, err := e.fetcher.Contacts(ctx)
	if err != nil {
		e.logger.Warn("contact fetch failed", zap.Error(err))
		notify.Error(e.bus, "Failed to load contacts: "+err.Error())
		return nil, err
	}
	e.directory.Replace(contacts)
	e.logger.Info("contacts fetched", zap.Int("count", len(contacts)))
	return e.directory.List(), nil
}

// FetchMembers loads and caches the member list of group groupID.
func (e *Engine) FetchMembers(ctx context.Context, groupID int64) ([]chat.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	members, err := e.fetcher.Members(ctx, groupID)
	if err != nil {
		e.logger.Warn("member fetch failed", zap.Int64("group_id", groupID), zap.Error(err))
		notify.Error(e.bus, "Failed to load group members: "+err.Error())
		return nil, err
	}
	e.directory.SetMembers(groupID, members)
	return members, nil
}

func (e *Engine) SendMessage(ctx context.Context, content string, target int64, kind chat.Kind) (chat.Message, error) {
	return e.composer.SendMessage(ctx, content, target, kind)
}

func (e *Engine) CreateGroup(ctx context.Context, name string, memberIDs []int64) error {
	return e.composer.CreateGroup(ctx, name, memberIDs)
}

// AcceptRequest answers notification id positively and, once the answer is
// sent, removes it.
func (e *Engine) AcceptRequest(ctx context.Context, id string) error {
	return e.answer(ctx, id, e.composer.AcceptRequest)
}

// RejectRequest declines notification id and, once the answer is sent,
// removes it.
func (e *Engine) RejectRequest(ctx context.Context, id string) error {
	return e.answer(ctx, id, e.composer.RejectRequest)
}

func (e *Engine) answer(ctx context.Context, id string, send func(context.Context, notify.Notification) error) error {
	n, ok := e.queue.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	if err := send(ctx, n); err != nil {
		return err
	}
	e.queue.Remove(id)
	return nil
}

// DismissNotification removes notification id without answering it.
func (e *Engine) DismissNotification(id string) bool { return e.queue.Remove(id) }

func (e *Engine) ClearNotifications() { e.queue.Clear() }

func (e *Engine) RequestFriend(ctx context.Context, userID int64) error {
	return e.composer.RequestFriend(ctx, userID)
}

func (e *Engine) RequestJoin(ctx context.Context, groupID int64) error {
	return e.composer.RequestJoin(ctx, groupID)
}

// SignOut goes offline (sending the presence-offline frame when
// connected), erases durable history, empties the directory and the
// notification queue, and forgets the identity.
func (e *Engine) SignOut(ctx context.Context) error {
	var errs []error
	if err := e.conn.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	if err := e.history.Clear(); err != nil {
		errs = append(errs, err)
	}
	e.directory.Reset()
	e.queue.Clear()
	e.session.Forget()
	e.logger.Info("signed out")
	return errors.Join(errs...)
}
