// Package reader keeps the text renderer and the playback engine in
// lockstep: it decides when audio follows view navigation, highlights
// the narrated fragment while playing, paces page flips against audio
// progress, and forwards observed positions to the sync engine.
package reader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/id"
	"github.com/storylineapp/storyline-core/internal/playback"
)

// RendererBridge is the async command surface into the text renderer.
// The daemon implements it over the event stream; tests fake it.
type RendererBridge interface {
	GoToHref(ctx context.Context, href string) error
	GoToFractionInSection(ctx context.Context, section int, fraction float64) error
	GoToBookFraction(ctx context.Context, fraction float64) error
	GoToLocator(ctx context.Context, loc domain.Locator) error
	HighlightFragment(ctx context.Context, section int, anchorID string, seekToLocation bool) error
	ClearHighlight(ctx context.Context) error
	FullyVisibleElementIDs(ctx context.Context) ([]string, error)
}

// Relocated is the renderer's navigation event: the view landed on a
// page. Callers coalesce rapid swipes before posting it.
type Relocated struct {
	Section    int     `json:"section"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Fraction   float64 `json:"fraction"`
	Href       string  `json:"href"`
}

// ElementVisibility reports how much of the highlighted element is
// still on-screen while narration plays.
type ElementVisibility struct {
	AnchorID       string  `json:"anchor_id"`
	VisibleRatio   float64 `json:"visible_ratio"`
	OffScreenRatio float64 `json:"off_screen_ratio"`
}

// ProgressSink receives observed positions for queueing and sync.
type ProgressSink interface {
	SyncProgress(ctx context.Context, bookID string, loc domain.Locator, timestampMillis float64) (domain.SyncOutcome, error)
}

// SessionRecorder persists completed listening spans. Optional.
type SessionRecorder interface {
	RecordSession(ctx context.Context, session domain.ListeningSession) error
}

// Options are the reconciler tunables. Zero values pick the defaults.
// The flip formula shape is what matters; the constants are feel
// adjustments, not contracts.
type Options struct {
	// FlipOffScreenThreshold flips immediately once this share of the
	// highlighted element has left the screen.
	FlipOffScreenThreshold float64
	// FlipDebounce is the minimum spacing between page flips.
	FlipDebounce time.Duration
	// FlipEarlyOffset lands scheduled flips slightly before the
	// narrated element finishes crossing off-screen.
	FlipEarlyOffset time.Duration
	// ChapterEndWindow is how close to chapter end, in seconds, the
	// chapter sleep timer fires.
	ChapterEndWindow float64
	// SleepTick is the fixed sleep timer's countdown granularity.
	SleepTick time.Duration

	// DeviceID tags recorded listening sessions.
	DeviceID string
}

func (o Options) withDefaults() Options {
	if o.FlipOffScreenThreshold <= 0 {
		o.FlipOffScreenThreshold = 0.9
	}
	if o.FlipDebounce <= 0 {
		o.FlipDebounce = 300 * time.Millisecond
	}
	if o.FlipEarlyOffset <= 0 {
		o.FlipEarlyOffset = 100 * time.Millisecond
	}
	if o.ChapterEndWindow <= 0 {
		o.ChapterEndWindow = 0.5
	}
	if o.SleepTick <= 0 {
		o.SleepTick = time.Second
	}
	return o
}

// Reconciler mediates between the renderer and the playback engine.
// It owns no durable state: just the last-observed snapshot mirror,
// the cached section list of the loaded book, and its timers.
type Reconciler struct {
	engine   *playback.Engine
	bridge   RendererBridge
	sink     ProgressSink
	sessions SessionRecorder
	logger   *slog.Logger
	opts     Options

	mu          sync.Mutex
	syncEnabled bool
	bookID      string
	sections    domain.Sections

	lastSnap domain.PlaybackSnapshot
	haveSnap bool

	sessionStart *sessionStart

	flipTimer *time.Timer
	lastFlip  time.Time

	sleepRemaining  int
	sleepDone       chan struct{}
	sleepChapterEnd bool

	sub *playback.Subscription
}

type sessionStart struct {
	bookID  string
	elapsed float64
	rate    float64
	at      time.Time
}

// New wires the reconciler to a playback engine and subscribes to its
// snapshots. sessions may be nil when stats are not wanted.
func New(engine *playback.Engine, bridge RendererBridge, sink ProgressSink, sessions SessionRecorder, syncEnabled bool, opts Options, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		engine:      engine,
		bridge:      bridge,
		sink:        sink,
		sessions:    sessions,
		logger:      logger,
		opts:        opts.withDefaults(),
		syncEnabled: syncEnabled,
	}
	r.sub = engine.Subscribe(r.onSnapshot)
	return r
}

// LoadBook loads a book into the engine and caches its section list
// for navigation decisions.
func (r *Reconciler) LoadBook(ctx context.Context, bookID, title string, sections domain.Sections) error {
	if err := r.engine.LoadBook(ctx, bookID, title, sections); err != nil {
		return err
	}

	r.mu.Lock()
	r.bookID = bookID
	r.sections = sections
	r.sessionStart = nil
	r.mu.Unlock()
	return nil
}

// RestorePosition resumes a loaded book at a stored reading position:
// the renderer is sent to the locator, and when its fragment anchor is
// narrated, audio seeks there too. A stale anchor leaves audio at the
// beginning.
func (r *Reconciler) RestorePosition(ctx context.Context, loc domain.Locator) {
	r.mu.Lock()
	sections := r.sections
	r.mu.Unlock()

	if anchor := loc.Fragment(); anchor != "" {
		found := false
		for si := range sections {
			if r.engine.SeekToFragment(ctx, si, anchor) {
				found = true
				break
			}
		}
		if !found {
			r.logger.Debug("restore anchor not found in timing tables", "anchor", anchor)
		}
	}

	if err := r.bridge.GoToLocator(ctx, loc); err != nil {
		r.logger.Warn("renderer navigation to stored position failed", "error", err)
	}
}

// SetSyncEnabled flips the mode that decides whether audio follows
// view navigation while paused.
func (r *Reconciler) SetSyncEnabled(v bool) {
	r.mu.Lock()
	r.syncEnabled = v
	r.mu.Unlock()
}

// SyncEnabled reports the current mode.
func (r *Reconciler) SyncEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncEnabled
}

// audio follows navigation when sync is enabled or narration is
// actively playing
func (r *Reconciler) shouldFollowLocked() bool {
	return r.syncEnabled || (r.haveSnap && r.lastSnap.IsPlaying)
}

// HandleChapterJump seeks audio to a chapter's first narration entry
// when the mode allows it. Chapters without narration are left alone.
func (r *Reconciler) HandleChapterJump(ctx context.Context, section int) error {
	r.mu.Lock()
	follow := r.shouldFollowLocked()
	sections := r.sections
	r.mu.Unlock()

	if !follow {
		return nil
	}
	if section < 0 || section >= len(sections) || !sections[section].HasNarration() {
		return nil
	}
	return r.engine.SeekToEntry(ctx, section, 0)
}

// HandleRelocated is the renderer's organic-navigation entry point.
func (r *Reconciler) HandleRelocated(ctx context.Context, ev Relocated) error {
	return r.HandlePageNavigation(ctx, ev.Section, ev.Page)
}

// HandlePageNavigation reconciles audio with a page landing. On the
// first page of a narrated chapter audio moves to its first entry;
// on later pages it moves to the first entry whose anchor is fully
// visible. No visible anchor means the renderer's truth wins and the
// audio position stays put.
func (r *Reconciler) HandlePageNavigation(ctx context.Context, section, page int) error {
	r.mu.Lock()
	follow := r.shouldFollowLocked()
	sections := r.sections
	r.mu.Unlock()

	if !follow {
		return nil
	}
	if section < 0 || section >= len(sections) || !sections[section].HasNarration() {
		return nil
	}

	if page <= 1 {
		return r.engine.SeekToEntry(ctx, section, 0)
	}

	ids, err := r.bridge.FullyVisibleElementIDs(ctx)
	if err != nil {
		r.logger.Warn("visible element query failed", slog.Any("error", err))
		return nil
	}
	visible := make(map[string]bool, len(ids))
	for _, anchorID := range ids {
		visible[anchorID] = true
	}

	entry, ok := sections.FirstVisibleEntry(section, visible)
	if !ok {
		return nil
	}
	return r.engine.SeekToEntry(ctx, section, entry)
}

// HandleExplicitSeek jumps audio to the narration entry anchored at
// anchorID. Text without audio alignment is a logged no-op.
func (r *Reconciler) HandleExplicitSeek(ctx context.Context, section int, anchorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.engine.SeekToFragment(ctx, section, anchorID) {
		r.logger.Debug("no narration entry for anchor",
			slog.Int("section", section), slog.String("anchor", anchorID))
	}
	return nil
}

// onSnapshot is the engine observer. Decisions are made under the
// mutex; engine, bridge and sink calls run outside it.
func (r *Reconciler) onSnapshot(snap domain.PlaybackSnapshot) {
	r.mu.Lock()
	prev, had := r.lastSnap, r.haveSnap
	r.lastSnap, r.haveSnap = snap, true

	sameBook := had && prev.BookID == snap.BookID
	if had && !sameBook {
		r.sessionStart = nil
	}

	entryChanged := !had ||
		prev.SectionIndex != snap.SectionIndex ||
		prev.EntryIndex != snap.EntryIndex
	playStarted := snap.IsPlaying && (!had || !prev.IsPlaying)
	pauseTransition := sameBook && prev.IsPlaying && !snap.IsPlaying

	if playStarted {
		r.sessionStart = &sessionStart{
			bookID:  snap.BookID,
			elapsed: snap.BookElapsed,
			rate:    snap.Rate,
			at:      time.Now(),
		}
	}

	var session *domain.ListeningSession
	if pauseTransition && r.sessionStart != nil && r.sessionStart.bookID == snap.BookID {
		start := r.sessionStart
		session = domain.NewListeningSession(
			id.MustGenerate("ses"), snap.BookID,
			start.elapsed, snap.BookElapsed,
			start.at, time.Now(),
			start.rate, r.opts.DeviceID,
		)
		r.sessionStart = nil
	}

	expireSleep := false
	if r.sleepChapterEnd && snap.IsPlaying && snap.ChapterTotal > 0 &&
		snap.ChapterTotal-snap.ChapterElapsed <= r.opts.ChapterEndWindow {
		r.sleepChapterEnd = false
		expireSleep = true
	}

	highlight := entryChanged && snap.IsPlaying && snap.CurrentFragment != ""

	forward := sameBook && snap.BookID != "" && (entryChanged || pauseTransition)
	var locator domain.Locator
	if forward {
		locator = r.locatorLocked(snap)
	}
	r.mu.Unlock()

	ctx := context.Background()
	if highlight {
		if err := r.bridge.HighlightFragment(ctx, snap.SectionIndex, snap.CurrentFragment, true); err != nil {
			r.logger.Warn("highlight command failed",
				slog.String("anchor", snap.CurrentFragment), slog.Any("error", err))
		}
	}
	if session != nil && r.sessions != nil {
		if err := r.sessions.RecordSession(ctx, *session); err != nil {
			r.logger.Warn("record listening session failed", slog.Any("error", err))
		}
	}
	if forward {
		// Timestamp is captured here; the upload may finish out of
		// order and the sync engine resolves that by timestamp.
		ts := domain.NowMillis()
		bookID := snap.BookID
		go func() {
			if _, err := r.sink.SyncProgress(context.Background(), bookID, locator, ts); err != nil {
				r.logger.Warn("forward progress failed",
					slog.String("book_id", bookID), slog.Any("error", err))
			}
		}()
	}
	if expireSleep {
		r.expireSleep()
	}
}

func currentPosition(snap domain.PlaybackSnapshot) domain.PlaybackPosition {
	return domain.PlaybackPosition{SectionIndex: snap.SectionIndex, EntryIndex: snap.EntryIndex}
}

// locatorLocked builds the portable position value for the snapshot.
func (r *Reconciler) locatorLocked(snap domain.PlaybackSnapshot) domain.Locator {
	pos := currentPosition(snap)

	var href string
	if entry, ok := r.sections.EntryAt(pos); ok {
		href = entry.Href
	}

	var fragments []string
	if snap.CurrentFragment != "" {
		fragments = []string{snap.CurrentFragment}
	}

	progression := 0.0
	if snap.ChapterTotal > 0 {
		progression = snap.ChapterElapsed / snap.ChapterTotal
	}
	total := 0.0
	if snap.BookTotal > 0 {
		total = snap.BookElapsed / snap.BookTotal
	}

	return domain.Locator{
		Href:  href,
		Type:  "application/xhtml+xml",
		Title: snap.ChapterLabel,
		Locations: domain.Locations{
			Fragments:        fragments,
			Progression:      domain.Float64Ptr(progression),
			TotalProgression: domain.Float64Ptr(total),
		},
	}
}

// Cleanup unsubscribes from the engine, cancels all timers, pauses
// if playing and clears the renderer highlight.
func (r *Reconciler) Cleanup(ctx context.Context) {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	flip := r.flipTimer
	r.flipTimer = nil
	r.stopSleepLocked()
	r.sleepChapterEnd = false
	playing := r.haveSnap && r.lastSnap.IsPlaying
	r.haveSnap = false
	r.sections = nil
	r.bookID = ""
	r.sessionStart = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if flip != nil {
		flip.Stop()
	}
	if playing {
		r.engine.Pause()
	}
	if err := r.bridge.ClearHighlight(ctx); err != nil {
		r.logger.Warn("clear highlight failed", slog.Any("error", err))
	}
}
