// Package connection owns the socket to the message server: it dials,
// announces presence, feeds inbound frames to a handler one at a time and
// schedules a single reconnection attempt after an unrequested close.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/clock"
	"github.com/matheus3301/simchat/internal/notify"
	"github.com/matheus3301/simchat/internal/session"
	"github.com/matheus3301/simchat/internal/status"
	"github.com/matheus3301/simchat/internal/transport"
	"github.com/matheus3301/simchat/internal/wire"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("not connected")

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// FrameHandler consumes inbound frames. OnFrame is called from the read
// loop and returns before the next frame is read.
type FrameHandler interface {
	OnFrame(raw []byte)
}

// HandlerFunc adapts a function to FrameHandler.
type HandlerFunc func(raw []byte)

func (f HandlerFunc) OnFrame(raw []byte) { f(raw) }

// Config holds the manager's timing.
type Config struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
}

// Manager is the connection lifecycle. At most one socket is live and at
// most one attempt is in flight at any time.
type Manager struct {
	cfg     Config
	dialer  transport.Dialer
	handler FrameHandler
	session *session.Session
	clock   clock.Clock
	fsm     *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu         sync.Mutex
	conn       transport.Conn
	attempting bool
	timer      *clock.Timer
	// gen changes on every Connect and Disconnect. Dials, read loops and
	// timers started under an older generation are stale and give up.
	gen        uint64
	cancelRead context.CancelFunc
}

// New creates a disconnected manager.
func New(cfg Config, dialer transport.Dialer, handler FrameHandler, sess *session.Session,
	clk clock.Clock, fsm *status.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if fsm == nil {
		fsm = status.NewMachine(b)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		session: sess,
		clock:   clk,
		fsm:     fsm,
		bus:     b,
		logger:  logger,
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State { return m.fsm.Current() }

// Connected reports whether the socket is open.
func (m *Manager) Connected() bool { return m.fsm.Current() == status.Open }

// Connect starts a connection attempt and returns immediately. It does
// nothing while an attempt is in flight or a socket is already open.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.attempting || m.fsm.Current() != status.Disconnected {
		m.mu.Unlock()
		return
	}
	if err := m.fsm.Transition(status.Connecting); err != nil {
		m.mu.Unlock()
		m.logger.Error("connect", zap.Error(err))
		return
	}
	// A new attempt replaces any pending backoff.
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.attempting = true
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

func (m *Manager) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	conn, err := m.dialer.Dial(ctx)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug("discarding dial completed after disconnect")
		return
	}
	m.attempting = false

	if err != nil {
		m.toDisconnectedLocked()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.logger.Warn("dial failed", zap.Error(err))
		notify.Error(m.bus, "Connection failed: "+err.Error())
		return
	}

	if err := m.fsm.Transition(status.Open); err != nil {
		m.mu.Unlock()
		_ = conn.Close()
		m.logger.Error("open", zap.Error(err))
		return
	}
	m.conn = conn
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	readCtx, cancelRead := context.WithCancel(context.Background())
	m.cancelRead = cancelRead
	m.mu.Unlock()

	userID := m.session.Identity().UserID
	m.logger.Info("connected", zap.Int64("user_id", userID), zap.Int("opens", m.fsm.Opens()))
	if err := m.write(readCtx, conn, wire.Announce(userID)); err != nil {
		m.logger.Warn("presence announce failed", zap.Error(err))
	}

	go m.readLoop(readCtx, gen, conn)
}

// readLoop hands frames to the handler strictly in arrival order.
func (m *Manager) readLoop(ctx context.Context, gen uint64, conn transport.Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.closed(gen, conn, err)
			return
		}
		m.handler.OnFrame(data)
	}
}

// closed handles an unrequested close of the socket from generation gen.
func (m *Manager) closed(gen uint64, conn transport.Conn, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.cancelRead != nil {
		m.cancelRead()
		m.cancelRead = nil
	}
	m.toDisconnectedLocked()
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	_ = conn.Close()
	if errors.Is(cause, transport.ErrClosed) {
		m.logger.Info("connection closed by server")
		return
	}
	m.logger.Warn("connection lost", zap.Error(cause))
	notify.Error(m.bus, "Connection lost: "+cause.Error())
}

// toDisconnectedLocked moves the FSM to Disconnected if it is elsewhere.
// Caller must hold m.mu.
func (m *Manager) toDisconnectedLocked() {
	if m.fsm.Current() == status.Disconnected {
		return
	}
	if err := m.fsm.Transition(status.Disconnected); err != nil {
		m.logger.Error("disconnect transition", zap.Error(err))
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
// Caller must hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}
	gen := m.gen
	var t *clock.Timer
	t = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		if m.timer == t {
			m.timer = nil
		}
		stale := gen != m.gen
		m.mu.Unlock()
		if stale {
			return
		}
		m.logger.Info("reconnecting")
		m.Connect()
	})
	m.timer = t
	m.logger.Debug("reconnect scheduled", zap.Duration("delay", m.cfg.ReconnectDelay))
}

// Disconnect cancels any pending reconnect, tells the server the user is
// going offline when a socket is open, and closes it. No reconnection
// follows.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.attempting = false
	conn := m.conn
	m.conn = nil
	cancelRead := m.cancelRead
	m.cancelRead = nil
	wasOpen := m.fsm.Current() == status.Open
	m.toDisconnectedLocked()
	m.mu.Unlock()

	var err error
	if conn != nil {
		if wasOpen {
			if werr := m.write(ctx, conn, wire.Offline(m.session.Identity().UserID)); werr != nil {
				m.logger.Warn("presence offline failed", zap.Error(werr))
				err = werr
			}
		}
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}
	if cancelRead != nil {
		cancelRead()
	}
	m.logger.Info("disconnected")
	return err
}

// Send transmits f on the open socket.
func (m *Manager) Send(ctx context.Context, f *wire.Frame) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || !m.Connected() {
		return ErrNotConnected
	}
	return m.write(ctx, conn, f)
}

func (m *Manager) write(ctx context.Context, conn transport.Conn, f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("send %s frame: %w", f.Action, err)
	}
	return nil
}
