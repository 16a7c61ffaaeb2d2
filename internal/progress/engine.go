// Package progress reconciles locally observed reading positions
// against the remote server: a pending queue of unconfirmed positions,
// a confirmed-position map, and timestamp-based conflict resolution.
// Timestamp is the sole tiebreaker, never arrival order or source.
package progress

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
	"github.com/storylineapp/storyline-core/internal/id"
	"github.com/storylineapp/storyline-core/internal/ratelimit"
)

// UploadResult is what one progress upload attempt came back with.
type UploadResult string

const (
	UploadSuccess      UploadResult = "success"
	UploadFailure      UploadResult = "failure"
	UploadNoConnection UploadResult = "noConnection"
)

// Transport is the remote media-server surface the engine needs.
type Transport interface {
	SendProgress(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) UploadResult
	Status() domain.ConnectionStatus
	FetchLibrary(ctx context.Context) error
}

// Catalog answers storage questions about library books.
type Catalog interface {
	IsLocalOnly(ctx context.Context, bookID string) (bool, error)
}

// Persistence stores the queue and audit history between runs.
type Persistence interface {
	LoadQueue(ctx context.Context) (map[string]domain.PendingProgressSync, error)
	SaveQueue(ctx context.Context, queue map[string]domain.PendingProgressSync) error
	LoadHistory(ctx context.Context) (map[string]domain.SyncHistory, error)
	SaveHistory(ctx context.Context, history map[string]domain.SyncHistory) error
}

// ServerPosition is one book position reported by the remote server
// during a library refresh.
type ServerPosition struct {
	BookID          string
	Locator         domain.Locator
	TimestampMillis float64
}

// BatchResult summarizes one replay pass over the pending queue.
type BatchResult struct {
	// Attempted counts the unsynced entries the pass examined.
	Attempted int
	// Synced counts uploads that succeeded plus entries dropped
	// because their book turned local-only.
	Synced int
	// Failed counts entries left queued for the next pass.
	Failed int
}

// SyncEvent is broadcast to subscribers after queue or confirmed
// state changes.
type SyncEvent struct {
	BookID  string             `json:"book_id,omitempty"`
	Outcome domain.SyncOutcome `json:"outcome,omitempty"`
	Pending int                `json:"pending"`
}

// Server timestamps may be rounded to whole seconds, so positions
// within this window are treated as the same write.
const confirmToleranceMillis = 1000.0

const replayLimiterKey = "progress-replay"

// Options configure the engine. Transport, Catalog and Persistence
// are required; Limiter paces queue replay when set.
type Options struct {
	Transport   Transport
	Catalog     Catalog
	Persistence Persistence
	Limiter     *ratelimit.KeyedRateLimiter

	// SyncInterval is the periodic replay cadence. Zero picks a
	// minute.
	SyncInterval time.Duration

	Logger *slog.Logger
}

// Engine owns the pending queue, the confirmed-position map and the
// per-book history log. All mutable state sits behind one mutex;
// uploads run outside it and their results are applied only if the
// queue entry they refer to is still current.
type Engine struct {
	transport Transport
	catalog   Catalog
	store     Persistence
	limiter   *ratelimit.KeyedRateLimiter
	logger    *slog.Logger

	syncInterval time.Duration

	mu         sync.Mutex
	queue      map[string]domain.PendingProgressSync
	confirmed  map[string]domain.BookReadingPosition
	history    map[string]domain.SyncHistory
	lastStatus domain.ConnectionStatus
	lastCount  int
	running    bool
	stopped    bool

	subMu   sync.RWMutex
	subs    map[string]*Subscription
	countFn func(int)

	events   chan SyncEvent
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine loads persisted state and starts the event dispatch loop.
// Load failures are logged and the engine starts empty; in-memory
// state is authoritative for the session either way.
func NewEngine(ctx context.Context, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		transport:    opts.Transport,
		catalog:      opts.Catalog,
		store:        opts.Persistence,
		limiter:      opts.Limiter,
		logger:       logger,
		syncInterval: opts.SyncInterval,
		queue:        make(map[string]domain.PendingProgressSync),
		confirmed:    make(map[string]domain.BookReadingPosition),
		history:      make(map[string]domain.SyncHistory),
		subs:         make(map[string]*Subscription),
		events:       make(chan SyncEvent, 64),
		done:         make(chan struct{}),
	}
	if e.syncInterval <= 0 {
		e.syncInterval = time.Minute
	}

	if queue, err := e.store.LoadQueue(ctx); err != nil {
		logger.Error("load progress queue failed, starting empty", slog.Any("error", err))
	} else {
		e.queue = queue
	}
	if history, err := e.store.LoadHistory(ctx); err != nil {
		logger.Warn("load sync history failed, starting empty", slog.Any("error", err))
	} else {
		e.history = history
	}
	e.lastCount = e.unsyncedCountLocked()

	e.wg.Add(1)
	go e.dispatch()
	return e
}

// QueueOfflineProgress runs queue reconciliation for a candidate
// position without attempting an upload. The queue keeps at most one
// entry per book and its timestamp never regresses.
func (e *Engine) QueueOfflineProgress(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) domain.SyncOutcome {
	e.mu.Lock()
	outcome := e.reconcileQueueLocked(ctx, bookID, loc, timestampMillis)
	e.persistHistoryLocked(ctx)
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()

	e.notify(SyncEvent{BookID: bookID, Outcome: outcome, Pending: pending})
	return outcome
}

// reconcileQueueLocked decides what to do with a candidate position.
// Order matters: the confirmed position vetoes first, then the queued
// entry, then the candidate is accepted.
func (e *Engine) reconcileQueueLocked(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) domain.SyncOutcome {
	if confirmed, ok := e.confirmed[bookID]; ok && confirmed.TimestampMillis >= timestampMillis {
		if confirmed.TimestampMillis == timestampMillis {
			e.recordHistoryLocked(bookID, "local", "queue reconciliation",
				"confirmed position already matches", domain.SyncSkippedNoChange, loc)
			return domain.SyncSkippedNoChange
		}
		e.recordHistoryLocked(bookID, "local", "queue reconciliation",
			"confirmed position is newer", domain.SyncRejectedServerHasNewer, loc)
		return domain.SyncRejectedServerHasNewer
	}

	if pending, ok := e.queue[bookID]; ok {
		switch {
		case timestampMillis == pending.TimestampMillis:
			return domain.SyncSkippedNoChange
		case timestampMillis < pending.TimestampMillis:
			e.recordHistoryLocked(bookID, "local", "queue reconciliation",
				"queued position is newer", domain.SyncSkippedQueueHasNewer, loc)
			return domain.SyncSkippedQueueHasNewer
		}

		e.queue[bookID] = domain.PendingProgressSync{
			BookID:          bookID,
			Locator:         loc,
			TimestampMillis: timestampMillis,
		}
		e.persistQueueLocked(ctx)
		e.recordHistoryLocked(bookID, "local", "queue reconciliation",
			"replaced older queued position", domain.SyncReplacedQueued, loc)
		return domain.SyncReplacedQueued
	}

	e.queue[bookID] = domain.PendingProgressSync{
		BookID:          bookID,
		Locator:         loc,
		TimestampMillis: timestampMillis,
	}
	e.persistQueueLocked(ctx)
	e.recordHistoryLocked(bookID, "local", "queue reconciliation",
		"no confirmed or queued position blocks it", domain.SyncQueued, loc)
	return domain.SyncQueued
}

// SyncProgress is the primary sync path for a locally observed
// position. Local-only books are recorded directly; remote-backed
// books go through queue reconciliation and, when the connection is
// up, one best-effort upload. Upload failures never fail the call.
func (e *Engine) SyncProgress(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) (domain.SyncOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if bookID == "" {
		return "", domainerrors.Validationf("book id is required")
	}

	localOnly, err := e.catalog.IsLocalOnly(ctx, bookID)
	if err != nil {
		e.logger.Warn("storage lookup failed, treating book as remote",
			slog.String("book_id", bookID), slog.Any("error", err))
		localOnly = false
	}

	e.mu.Lock()
	if localOnly {
		e.adoptConfirmedLocked(bookID, loc, timestampMillis, domain.ProgressSourceLocal)
		e.recordHistoryLocked(bookID, "local", "sync progress",
			"book is local-only", domain.SyncRecordedLocalOnly, loc)
		e.persistHistoryLocked(ctx)
		pending := e.unsyncedCountLocked()
		e.mu.Unlock()

		e.notify(SyncEvent{BookID: bookID, Outcome: domain.SyncRecordedLocalOnly, Pending: pending})
		return domain.SyncRecordedLocalOnly, nil
	}

	outcome := e.reconcileQueueLocked(ctx, bookID, loc, timestampMillis)
	accepted := outcome == domain.SyncQueued || outcome == domain.SyncReplacedQueued
	connected := accepted && e.transport.Status() == domain.ConnectionConnected
	e.persistHistoryLocked(ctx)
	e.mu.Unlock()

	if connected {
		if e.uploadPending(ctx, bookID, loc, timestampMillis, "sync progress") {
			outcome = domain.SyncSynced
		}
	}

	e.mu.Lock()
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()
	e.notify(SyncEvent{BookID: bookID, Outcome: outcome, Pending: pending})
	return outcome, nil
}

// uploadPending sends one queued position and applies the result. The
// result is dropped if the queue entry changed while the upload was
// in flight; the newer entry supersedes it on the next pass.
func (e *Engine) uploadPending(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64, location string) bool {
	result := e.transport.SendProgress(ctx, bookID, loc, timestampMillis)

	e.mu.Lock()
	defer e.mu.Unlock()

	pending, ok := e.queue[bookID]
	if !ok || pending.TimestampMillis != timestampMillis {
		return false
	}

	if result != UploadSuccess {
		e.logger.Debug("progress upload failed, left queued",
			slog.String("book_id", bookID), slog.String("result", string(result)))
		e.recordHistoryLocked(bookID, "local", location,
			"upload "+string(result), domain.SyncUploadFailed, loc)
		e.persistHistoryLocked(ctx)
		return false
	}

	pending.SyncedToRemote = true
	e.queue[bookID] = pending
	e.adoptConfirmedLocked(bookID, loc, timestampMillis, domain.ProgressSourceServer)
	e.persistQueueLocked(ctx)
	e.recordHistoryLocked(bookID, "local", location,
		"upload accepted", domain.SyncSynced, loc)
	e.persistHistoryLocked(ctx)
	return true
}

// SyncPendingQueue replays the queue against the server: local-only
// leftovers are dropped, unsynced entries upload one at a time, and
// failures stay queued for the next pass.
func (e *Engine) SyncPendingQueue(ctx context.Context) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	e.mu.Lock()
	snapshot := make([]domain.PendingProgressSync, 0, len(e.queue))
	for _, pending := range e.queue {
		if !pending.SyncedToRemote {
			snapshot = append(snapshot, pending)
		}
	}
	e.mu.Unlock()

	// Oldest first so a partial pass drains in write order.
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].TimestampMillis < snapshot[j].TimestampMillis
	})

	var result BatchResult
	for _, pending := range snapshot {
		result.Attempted++

		localOnly, err := e.catalog.IsLocalOnly(ctx, pending.BookID)
		if err != nil {
			e.logger.Warn("storage lookup failed, treating book as remote",
				slog.String("book_id", pending.BookID), slog.Any("error", err))
		}
		if localOnly {
			e.dropLocalOnlyPending(ctx, pending)
			result.Synced++
			continue
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, replayLimiterKey); err != nil {
				result.Failed += len(snapshot) - result.Attempted + 1
				e.finishBatch(ctx, result)
				return result, err
			}
		}

		if e.uploadPending(ctx, pending.BookID, pending.Locator, pending.TimestampMillis, "queue replay") {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	e.finishBatch(ctx, result)
	return result, nil
}

// dropLocalOnlyPending removes a queue entry whose book no longer has
// a remote backing, adopting it as the local position.
func (e *Engine) dropLocalOnlyPending(ctx context.Context, pending domain.PendingProgressSync) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.queue[pending.BookID]
	if !ok || cur.TimestampMillis != pending.TimestampMillis {
		return
	}
	delete(e.queue, pending.BookID)
	e.adoptConfirmedLocked(pending.BookID, pending.Locator, pending.TimestampMillis, domain.ProgressSourceLocal)
	e.persistQueueLocked(ctx)
	e.recordHistoryLocked(pending.BookID, "replay", "queue replay",
		"book became local-only", domain.SyncDroppedLocalOnly, pending.Locator)
}

func (e *Engine) finishBatch(ctx context.Context, result BatchResult) {
	e.mu.Lock()
	e.persistHistoryLocked(ctx)
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()

	if result.Attempted == 0 {
		return
	}
	e.logger.Debug("queue replay finished",
		slog.Int("attempted", result.Attempted),
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed))
	e.notify(SyncEvent{Pending: pending})
}

// UpdateServerPositions reconciles positions reported by the server
// during a library refresh. A queued local edit survives unless the
// incoming timestamp is strictly newer; confirmed timestamps never
// regress.
func (e *Engine) UpdateServerPositions(ctx context.Context, positions []ServerPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	queueChanged := false
	for _, p := range positions {
		pending, hasPending := e.queue[p.BookID]

		if hasPending && math.Abs(p.TimestampMillis-pending.TimestampMillis) <= confirmToleranceMillis {
			delete(e.queue, p.BookID)
			e.adoptConfirmedLocked(p.BookID, p.Locator, p.TimestampMillis, domain.ProgressSourceServer)
			e.recordHistoryLocked(p.BookID, "server", "server reconciliation",
				"queued position confirmed", domain.SyncCompleted, p.Locator)
			queueChanged = true
			continue
		}

		if confirmed, ok := e.confirmed[p.BookID]; ok &&
			math.Abs(p.TimestampMillis-confirmed.TimestampMillis) <= confirmToleranceMillis {
			continue
		}

		if hasPending {
			if p.TimestampMillis > pending.TimestampMillis {
				delete(e.queue, p.BookID)
				e.adoptConfirmedLocked(p.BookID, p.Locator, p.TimestampMillis, domain.ProgressSourceServer)
				e.recordHistoryLocked(p.BookID, "server", "server reconciliation",
					"incoming is newer than queued", domain.SyncServerIncomingAccepted, p.Locator)
				queueChanged = true
			} else {
				e.recordHistoryLocked(p.BookID, "server", "server reconciliation",
					"queued position is newer", domain.SyncServerIncomingRejected, p.Locator)
			}
			continue
		}

		if e.adoptConfirmedLocked(p.BookID, p.Locator, p.TimestampMillis, domain.ProgressSourceServer) {
			e.recordHistoryLocked(p.BookID, "server", "server reconciliation",
				"incoming is newer than confirmed", domain.SyncServerIncomingAccepted, p.Locator)
		}
	}

	if queueChanged {
		e.persistQueueLocked(ctx)
	}
	e.persistHistoryLocked(ctx)
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()

	if len(positions) > 0 {
		e.notify(SyncEvent{Pending: pending})
	}
	return nil
}

// adoptConfirmedLocked installs a confirmed position unless an equal
// or newer one is already held.
func (e *Engine) adoptConfirmedLocked(bookID string, loc domain.Locator, timestampMillis float64, origin domain.ProgressSource) bool {
	if cur, ok := e.confirmed[bookID]; ok && cur.TimestampMillis >= timestampMillis {
		return false
	}
	e.confirmed[bookID] = domain.BookReadingPosition{
		Locator:         loc,
		TimestampMillis: timestampMillis,
		Origin:          origin,
	}
	return true
}

// GetBookProgress reports the freshest known position for a book. A
// queued entry outranks the confirmed position: what the user most
// recently did wins for display, even before confirmation.
func (e *Engine) GetBookProgress(ctx context.Context, bookID string) (domain.BookProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked(bookID)
}

// GetAllBookProgress reports every book with a known position, sorted
// by book id.
func (e *Engine) GetAllBookProgress(ctx context.Context) []domain.BookProgress {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(e.queue)+len(e.confirmed))
	for bookID := range e.queue {
		seen[bookID] = true
	}
	for bookID := range e.confirmed {
		seen[bookID] = true
	}

	all := make([]domain.BookProgress, 0, len(seen))
	for bookID := range seen {
		if progress, ok := e.progressLocked(bookID); ok {
			all = append(all, progress)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookID < all[j].BookID })
	return all
}

func (e *Engine) progressLocked(bookID string) (domain.BookProgress, bool) {
	if pending, ok := e.queue[bookID]; ok {
		source := domain.ProgressSourceQueue
		if pending.SyncedToRemote {
			source = domain.ProgressSourceServer
		}
		return domain.BookProgress{
			BookID:          bookID,
			Locator:         pending.Locator,
			TimestampMillis: pending.TimestampMillis,
			Source:          source,
		}, true
	}

	if confirmed, ok := e.confirmed[bookID]; ok {
		source := domain.ProgressSourceServer
		if confirmed.Origin == domain.ProgressSourceLocal {
			source = domain.ProgressSourceLocal
		}
		return domain.BookProgress{
			BookID:          bookID,
			Locator:         confirmed.Locator,
			TimestampMillis: confirmed.TimestampMillis,
			Source:          source,
		}, true
	}
	return domain.BookProgress{}, false
}

// PendingCount reports how many positions still await a successful
// upload. Entries already uploaded but awaiting server confirmation
// do not count as pending.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unsyncedCountLocked()
}

func (e *Engine) unsyncedCountLocked() int {
	n := 0
	for _, pending := range e.queue {
		if !pending.SyncedToRemote {
			n++
		}
	}
	return n
}

// History returns a copy of a book's sync audit log, oldest first.
func (e *Engine) History(bookID string) domain.SyncHistory {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.history[bookID]
	out := make(domain.SyncHistory, len(entries))
	copy(out, entries)
	return out
}

// Start launches the periodic replay loop. Connectivity restoration
// is detected on the same cadence and triggers a library refresh
// before the replay so server reconciliation lands first.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.lastStatus = e.transport.Status()
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.replayTick(ctx)
		}
	}
}

func (e *Engine) replayTick(ctx context.Context) {
	status := e.transport.Status()

	e.mu.Lock()
	restored := status == domain.ConnectionConnected && e.lastStatus != domain.ConnectionConnected
	e.lastStatus = status
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()

	if status != domain.ConnectionConnected {
		return
	}

	if restored {
		e.logger.Info("connection restored, replaying sync queue", slog.Int("pending", pending))
		if err := e.transport.FetchLibrary(ctx); err != nil {
			e.logger.Warn("library refresh after reconnect failed", slog.Any("error", err))
		}
	} else if pending == 0 {
		return
	}

	if _, err := e.SyncPendingQueue(ctx); err != nil {
		e.logger.Debug("queue replay aborted", slog.Any("error", err))
	}
}

// Stop ends the replay loop and the dispatch loop. The engine cannot
// be restarted afterwards.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)

		e.mu.Lock()
		e.stopped = true
		e.running = false
		e.mu.Unlock()

		e.subMu.Lock()
		e.subs = make(map[string]*Subscription)
		e.countFn = nil
		e.subMu.Unlock()
	})
	e.wg.Wait()
}

// recordHistoryLocked appends one audit line for a book, bounded to
// the newest entries.
func (e *Engine) recordHistoryLocked(bookID, source, location, reason string, result domain.SyncOutcome, loc domain.Locator) {
	entry := domain.SyncHistoryEntry{
		ID:              id.MustGenerate("his"),
		TimestampMillis: domain.NowMillis(),
		Source:          source,
		Location:        location,
		Reason:          reason,
		Result:          result,
		LocatorSummary:  loc.Summary(),
		Locator:         &loc,
	}
	e.history[bookID] = e.history[bookID].Append(entry)
}

func (e *Engine) persistQueueLocked(ctx context.Context) {
	if err := e.store.SaveQueue(ctx, e.queue); err != nil {
		e.logger.Error("persist progress queue failed", slog.Any("error", err))
	}
}

func (e *Engine) persistHistoryLocked(ctx context.Context) {
	if err := e.store.SaveHistory(ctx, e.history); err != nil {
		e.logger.Warn("persist sync history failed", slog.Any("error", err))
	}
}
