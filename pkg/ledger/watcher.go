package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vault-zap/pkg/client"
	"vault-zap/pkg/metrics"
	"vault-zap/pkg/types"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultMaxBackoff     = 5 * time.Minute
	DefaultReloadInterval = 60 * time.Second
)

// BridgeTracker reports the state of a cross chain transfer
type BridgeTracker interface {
	Status(ctx context.Context, fromChain, toChain uint64, txHash string) (*client.LiFiStatus, error)
}

// BatchTracker reports the state of a Safe batch
type BatchTracker interface {
	Status(ctx context.Context, chainID uint64, safeTxHash string) (client.BatchStatus, error)
}

// WatcherConfig tunes polling. Zero values fall back to the defaults.
type WatcherConfig struct {
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	ReloadInterval time.Duration
}

// Watcher polls pending bridge and Safe notifications until they settle
type Watcher struct {
	ledger  *Ledger
	bridge  BridgeTracker
	batches BatchTracker
	cfg     WatcherConfig
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	pollers map[int64]*poller
	wg      sync.WaitGroup
}

type poller struct {
	notification types.Notification
	cancel       context.CancelFunc
}

// NewWatcher creates a watcher and subscribes it to ledger changes
func NewWatcher(l *Ledger, bridge BridgeTracker, batches BatchTracker, cfg WatcherConfig, logger zerolog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.PollInterval {
			cfg.MaxBackoff = cfg.PollInterval
		}
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = DefaultReloadInterval
	}

	w := &Watcher{
		ledger:  l,
		bridge:  bridge,
		batches: batches,
		cfg:     cfg,
		logger:  logger.With().Str("component", "watcher").Logger(),
		pollers: make(map[int64]*poller),
	}
	l.Subscribe(w.handle)
	return w
}

// Start resumes polling for every pending notification
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)

	for _, n := range w.ledger.Pending() {
		w.track(n)
	}

	w.wg.Add(1)
	go w.monitorChanges()

	w.logger.Info().Int("pollers", len(w.pollers)).Msg("watcher started")
	return nil
}

// Stop cancels every poller and waits for them to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.pollers = make(map[int64]*poller)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info().Msg("watcher stopped")
}

// Tracking returns the IDs currently being polled
func (w *Watcher) Tracking() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]int64, 0, len(w.pollers))
	for id := range w.pollers {
		ids = append(ids, id)
	}
	return ids
}

// IsTracking reports whether id has an active poller
func (w *Watcher) IsTracking(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.pollers[id]
	return ok
}

func (w *Watcher) handle(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	switch e.Kind {
	case EventAdded:
		w.track(e.Notification)
	case EventUpdated:
		if e.Notification.Status.IsTerminal() {
			w.untrack(e.Notification.ID)
		}
	case EventDeleted:
		w.untrack(e.Notification.ID)
	}
}

// trackable reports whether n settles asynchronously and carries what the
// status endpoints need
func trackable(n types.Notification) bool {
	if n.Status.IsTerminal() {
		return false
	}
	switch n.Type {
	case types.NotificationLifi:
		return n.TxHash != ""
	case types.NotificationPortalsGnosis:
		return n.SafeTxHash != ""
	}
	return false
}

// track starts a poller for n (must be called with lock held)
func (w *Watcher) track(n types.Notification) {
	if !trackable(n) {
		return
	}
	if _, exists := w.pollers[n.ID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	p := &poller{notification: n, cancel: cancel}
	w.pollers[n.ID] = p

	metrics.ActivePollers.Inc()
	w.wg.Add(1)
	go w.poll(ctx, p)
}

// untrack stops the poller for id (must be called with lock held)
func (w *Watcher) untrack(id int64) {
	p, exists := w.pollers[id]
	if !exists {
		return
	}
	p.cancel()
	delete(w.pollers, id)
}

func (w *Watcher) release(p *poller) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.pollers[p.notification.ID]; ok && current == p {
		delete(w.pollers, p.notification.ID)
	}
}

func (w *Watcher) poll(ctx context.Context, p *poller) {
	defer w.wg.Done()
	defer metrics.ActivePollers.Dec()
	defer p.cancel()
	defer w.release(p)

	n := p.notification
	logger := w.logger.With().
		Int64("id", n.ID).
		Str("type", string(n.Type)).
		Logger()
	logger.Debug().Msg("polling started")

	// first check happens right away
	delay := time.Duration(0)
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug().Msg("polling stopped")
			return
		case <-timer.C:
		}

		status, txHash, err := w.check(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.PollErrors.WithLabelValues(string(n.Type)).Inc()
			delay = backoff(delay, w.cfg.PollInterval, w.cfg.MaxBackoff)
			logger.Warn().Err(err).Dur("retry_in", delay).Msg("status check failed")
			continue
		}
		delay = w.cfg.PollInterval
		if !status.IsTerminal() {
			continue
		}

		if _, err := w.ledger.UpdateStatus(n.ID, status, txHash); err != nil {
			if !errors.Is(err, ErrTerminal) && !errors.Is(err, ErrNotFound) {
				logger.Error().Err(err).Msg("failed to record status")
			}
		}
		return
	}
}

// backoff doubles the previous delay, starting at base and capped at ceiling
func backoff(prev, base, ceiling time.Duration) time.Duration {
	if prev < base {
		return base
	}
	next := prev * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

// check queries the status endpoint for n. A returned hash replaces the
// recorded one.
func (w *Watcher) check(ctx context.Context, n types.Notification) (types.NotificationStatus, string, error) {
	switch n.Type {
	case types.NotificationLifi:
		if w.bridge == nil {
			return "", "", fmt.Errorf("no bridge tracker configured")
		}
		status, err := w.bridge.Status(ctx, n.FromChainID, n.ToChainID, n.TxHash)
		if err != nil {
			return "", "", err
		}
		switch status.Status {
		case client.LiFiStatusDone:
			return types.NotificationSuccess, "", nil
		case client.LiFiStatusFailed:
			return types.NotificationError, "", nil
		}
		return types.NotificationPending, "", nil

	case types.NotificationPortalsGnosis:
		if w.batches == nil {
			return "", "", fmt.Errorf("no batch tracker configured")
		}
		status, err := w.batches.Status(ctx, n.FromChainID, n.SafeTxHash)
		if err != nil {
			return "", "", err
		}
		switch status.State {
		case client.BatchSuccess:
			return types.NotificationSuccess, status.TxHash, nil
		case client.BatchFailed, client.BatchCancelled:
			return types.NotificationError, status.TxHash, nil
		}
		return types.NotificationPending, "", nil
	}
	return "", "", fmt.Errorf("notification type %q is not polled", n.Type)
}

// monitorChanges picks up notifications added or removed by other processes
func (w *Watcher) monitorChanges() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := w.ledger.Reload(); err != nil {
		w.logger.Error().Err(err).Msg("failed to reload notifications")
		return
	}

	pending := make(map[int64]types.Notification)
	for _, n := range w.ledger.Pending() {
		pending[n.ID] = n
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	for id := range w.pollers {
		if _, ok := pending[id]; !ok {
			w.logger.Info().Int64("id", id).Msg("notification no longer pending, stopping poller")
			w.untrack(id)
		}
	}
	for _, n := range pending {
		w.track(n)
	}
}
