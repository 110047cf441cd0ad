package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/simchat/internal/bus"
	"github.com/matheus3301/simchat/internal/chat"
	"github.com/matheus3301/simchat/internal/history"
	"github.com/matheus3301/simchat/internal/notify"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a single history fetch.
const DefaultRequestTimeout = 10 * time.Second

// HistoryFetcher retrieves a conversation's server-side history.
type HistoryFetcher interface {
	History(ctx context.Context, id chat.ID) ([]chat.Message, error)
}

// Loader fetches a conversation's history the first time it is needed.
type Loader struct {
	fetcher HistoryFetcher
	history *history.Store
	timeout time.Duration
	bus     *bus.Bus
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[chat.ID]struct{}
}

// NewLoader creates a loader. A non-positive timeout selects
// DefaultRequestTimeout.
func NewLoader(fetcher HistoryFetcher, h *history.Store, timeout time.Duration, b *bus.Bus, logger *zap.Logger) *Loader {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fetcher:  fetcher,
		history:  h,
		timeout:  timeout,
		bus:      b,
		logger:   logger,
		inflight: make(map[chat.ID]struct{}),
	}
}

// Load fetches and installs the history of id unless the store already
// has one or a fetch for id is running. It reports whether history was
// installed; a fetch that finishes after the store was cleared installs
// nothing. A failed fetch publishes an error notice and leaves id
// unloaded so a later Load retries.
func (l *Loader) Load(ctx context.Context, id chat.ID) (bool, error) {
	if l.history.HasHistory(id) {
		return false, nil
	}
	l.mu.Lock()
	if _, busy := l.inflight[id]; busy {
		l.mu.Unlock()
		return false, nil
	}
	l.inflight[id] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.inflight, id)
		l.mu.Unlock()
	}()

	epoch := l.history.Epoch()
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msgs, err := l.fetcher.History(ctx, id)
	if err != nil {
		l.logger.Warn("history fetch failed", zap.Stringer("conversation", id), zap.Error(err))
		notify.Error(l.bus, "Failed to load history: "+err.Error())
		return false, fmt.Errorf("load history of %s: %w", id, err)
	}

	installed, err := l.history.ReplaceHistory(epoch, id, msgs)
	if installed {
		l.logger.Info("history loaded", zap.Stringer("conversation", id), zap.Int("messages", len(msgs)))
	}
	return installed, err
}

// InFlight reports whether a fetch for id is running.
func (l *Loader) InFlight(id chat.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[id]
	return ok
}
