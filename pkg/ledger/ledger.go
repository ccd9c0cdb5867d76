// Package ledger records deposits and withdrawals and follows the ones that
// settle asynchronously until they reach a terminal status.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vault-zap/pkg/metrics"
	"vault-zap/pkg/types"
)

// ErrTerminal is returned when changing the status of a settled notification
var ErrTerminal = errors.New("notification already settled")

// EventKind identifies a ledger change
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is emitted after every ledger change
type Event struct {
	Kind         EventKind
	Notification types.Notification
}

// Ledger manages notifications on top of a Storage
type Ledger struct {
	storage *Storage
	logger  zerolog.Logger

	mu        sync.RWMutex
	listeners []func(Event)
}

// New creates a ledger
func New(storage *Storage, logger zerolog.Logger) *Ledger {
	return &Ledger{
		storage: storage,
		logger:  logger.With().Str("component", "ledger").Logger(),
	}
}

// Subscribe registers fn for every subsequent change
func (l *Ledger) Subscribe(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) emit(kind EventKind, n types.Notification) {
	l.mu.RLock()
	listeners := append([]func(Event){}, l.listeners...)
	l.mu.RUnlock()

	for _, fn := range listeners {
		fn(Event{Kind: kind, Notification: n})
	}
}

// Add stores a new notification. Entries without a status start pending and
// entries without a key get a random one. Adding a key twice returns the
// first entry unchanged.
func (l *Ledger) Add(n types.Notification) (types.Notification, error) {
	if n.Type == "" {
		return types.Notification{}, fmt.Errorf("notification type is required")
	}
	if n.Status == "" {
		n.Status = types.NotificationPending
	}
	if n.Key == "" {
		n.Key = uuid.New().String()
	}

	saved, created, err := l.storage.Insert(n)
	if err != nil {
		return types.Notification{}, fmt.Errorf("failed to add notification: %w", err)
	}
	if !created {
		l.logger.Debug().Int64("id", saved.ID).Str("key", saved.Key).Msg("notification already recorded")
		return saved, nil
	}
	metrics.NotificationTransitions.WithLabelValues(string(saved.Type), string(saved.Status)).Inc()
	l.logger.Info().
		Int64("id", saved.ID).
		Str("type", string(saved.Type)).
		Str("status", string(saved.Status)).
		Msg("notification added")

	l.emit(EventAdded, saved)
	return saved, nil
}

// Get returns a notification by ID
func (l *Ledger) Get(id int64) (types.Notification, error) {
	return l.storage.Get(id)
}

// List returns every notification, oldest first
func (l *Ledger) List() []types.Notification {
	return l.storage.List()
}

// Pending returns the notifications that may still change
func (l *Ledger) Pending() []types.Notification {
	var pending []types.Notification
	for _, n := range l.storage.List() {
		if !n.Status.IsTerminal() {
			pending = append(pending, n)
		}
	}
	return pending
}

// Reload picks up notifications written by other processes
func (l *Ledger) Reload() error {
	return l.storage.Reload()
}

// UpdateStatus moves a pending notification to status. A non empty txHash
// replaces the recorded hash.
func (l *Ledger) UpdateStatus(id int64, status types.NotificationStatus, txHash string) (types.Notification, error) {
	updated, err := l.storage.Modify(id, func(n *types.Notification) error {
		if n.Status.IsTerminal() {
			return fmt.Errorf("%w: %d is %s", ErrTerminal, id, n.Status)
		}
		n.Status = status
		if txHash != "" {
			n.TxHash = txHash
		}
		return nil
	})
	if err != nil {
		return types.Notification{}, err
	}

	metrics.NotificationTransitions.WithLabelValues(string(updated.Type), string(updated.Status)).Inc()
	l.logger.Info().
		Int64("id", id).
		Str("type", string(updated.Type)).
		Str("status", string(updated.Status)).
		Msg("notification updated")

	l.emit(EventUpdated, updated)
	return updated, nil
}

// Delete removes a notification. Its poller, if any, stops.
func (l *Ledger) Delete(id int64) error {
	n, err := l.storage.Delete(id)
	if err != nil {
		return err
	}
	l.logger.Info().Int64("id", id).Msg("notification deleted")
	l.emit(EventDeleted, n)
	return nil
}
