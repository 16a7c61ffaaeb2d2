// Package playback drives narrated audio through a book's timing
// table: one engine owns the playback position, the live audio handle
// and the advancement timer.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/storylineapp/storyline-core/internal/audio"
	"github.com/storylineapp/storyline-core/internal/domain"
	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
)

// Options are the engine tunables. Zero values pick the defaults.
type Options struct {
	// TickInterval paces the advancement timer.
	TickInterval time.Duration
	// AdvanceEpsilon absorbs audio-clock jitter at entry ends, seconds.
	AdvanceEpsilon float64
	// EmitThrottle bounds tick-driven snapshot churn while playing.
	EmitThrottle time.Duration
	// ResumeGrace auto-resumes seeks that land within this window of a
	// playing-to-paused transition, smoothing rapid reseeks.
	ResumeGrace time.Duration

	InitialRate   float64
	InitialVolume float64
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = 100 * time.Millisecond
	}
	if o.AdvanceEpsilon <= 0 {
		o.AdvanceEpsilon = 0.02
	}
	if o.EmitThrottle <= 0 {
		o.EmitThrottle = 200 * time.Millisecond
	}
	if o.ResumeGrace <= 0 {
		o.ResumeGrace = 500 * time.Millisecond
	}
	if o.InitialRate <= 0 {
		o.InitialRate = 1.0
	}
	if o.InitialVolume <= 0 {
		o.InitialVolume = 1.0
	}
	return o
}

// Engine is the audio playback actor. All mutable state sits behind
// one mutex; the ticker re-enters it through tick instead of touching
// state from outside.
type Engine struct {
	mu sync.Mutex

	opener audio.Opener
	logger *slog.Logger
	opts   Options

	loaded   bool
	bookID   string
	title    string
	sections domain.Sections

	pos     domain.PlaybackPosition
	playing bool
	rate    float64
	volume  float64

	handle     audio.Handle
	tickerStop chan struct{}

	// lastStoppedPlaying anchors the resume grace window.
	lastStoppedPlaying time.Time

	lastSnapshot *domain.PlaybackSnapshot
	lastEmit     time.Time

	subMu sync.RWMutex
	subs  map[string]*Subscription

	events chan domain.PlaybackSnapshot
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates an engine and starts its snapshot dispatch loop.
// Call Close when the process shuts down; Cleanup only resets state.
func NewEngine(opener audio.Opener, logger *slog.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opener: opener,
		logger: logger,
		opts:   opts,
		rate:   opts.InitialRate,
		volume: opts.InitialVolume,
		subs:   make(map[string]*Subscription),
		events: make(chan domain.PlaybackSnapshot, 64),
		done:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.dispatch()
	return e
}

// LoadBook installs a book's section list and resets the position to
// the first narrated entry, paused. Prior book resources are released
// first.
func (e *Engine) LoadBook(ctx context.Context, bookID, title string, sections domain.Sections) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	first, ok := sections.FirstNarrated()
	if !ok {
		return domainerrors.ErrNoNarration.WithDetails(map[string]string{"book_id": bookID})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.releaseLocked()

	entry := sections[first].Entries[0]
	e.loaded = true
	e.bookID = bookID
	e.title = title
	e.sections = sections
	e.pos = domain.PlaybackPosition{
		SectionIndex:   first,
		EntryIndex:     0,
		AudioFile:      entry.AudioFile,
		TimeWithinFile: entry.Begin,
	}

	e.logger.Info("book loaded",
		slog.String("book_id", bookID),
		slog.Int("sections", len(sections)),
		slog.Int("first_narrated", first))

	e.emitLocked(true)
	return nil
}

// Play starts playback at the current position, opening the entry's
// audio file if none is loaded yet.
func (e *Engine) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return domainerrors.ErrBookNotLoaded
	}
	if e.playing {
		return nil
	}

	if e.handle == nil {
		if err := e.openCurrentLocked(); err != nil {
			return err
		}
	}

	e.handle.Play()
	e.playing = true
	e.startTickerLocked()
	e.emitLocked(true)
	return nil
}

// Pause stops playback. Pausing while paused is a no-op with no
// duplicate emission.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

func (e *Engine) pauseLocked() {
	if !e.playing {
		return
	}

	if e.handle != nil {
		e.handle.Pause()
		e.pos.TimeWithinFile = e.handle.Position()
	}
	e.playing = false
	e.lastStoppedPlaying = time.Now()
	e.stopTickerLocked()
	e.emitLocked(true)
}

// TogglePlayPause flips between playing and paused.
func (e *Engine) TogglePlayPause(ctx context.Context) error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()

	if playing {
		e.Pause()
		return nil
	}
	return e.Play(ctx)
}

// SeekToEntry positions playback at the begin time of the addressed
// entry. The audio file is reloaded only when it differs from the
// loaded one. A seek landing within the resume grace window of a
// playing-to-paused transition resumes playback automatically.
func (e *Engine) SeekToEntry(ctx context.Context, section, entry int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return domainerrors.ErrBookNotLoaded
	}
	target := domain.PlaybackPosition{SectionIndex: section, EntryIndex: entry}
	if !e.sections.Valid(target) {
		return domainerrors.InvalidPositionf("no entry at section %d entry %d", section, entry)
	}

	return e.seekToEntryLocked(section, entry)
}

// SeekToFragment is the probe form of SeekToEntry used by the
// reconciler: unknown anchors and load failures report false instead
// of an error, and leave the position untouched.
func (e *Engine) SeekToFragment(ctx context.Context, section int, anchorID string) bool {
	if err := ctx.Err(); err != nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return false
	}
	entry, ok := e.sections.FindFragment(section, anchorID)
	if !ok {
		e.logger.Debug("fragment has no narration entry",
			slog.Int("section", section),
			slog.String("anchor_id", anchorID))
		return false
	}

	if err := e.seekToEntryLocked(section, entry); err != nil {
		e.logger.Warn("fragment seek failed",
			slog.Int("section", section),
			slog.String("anchor_id", anchorID),
			slog.Any("error", err))
		return false
	}
	return true
}

// seekToEntryLocked commits a bounds-checked move. Position mutates
// only after the target file is open, so failures leave state intact.
func (e *Engine) seekToEntryLocked(section, entry int) error {
	target := e.sections[section].Entries[entry]
	wasPlaying := e.playing
	graceResume := !wasPlaying && !e.lastStoppedPlaying.IsZero() &&
		time.Since(e.lastStoppedPlaying) < e.opts.ResumeGrace

	if err := e.ensureHandleLocked(target.AudioFile); err != nil {
		return err
	}

	e.handle.Seek(target.Begin)
	e.pos = domain.PlaybackPosition{
		SectionIndex:   section,
		EntryIndex:     entry,
		AudioFile:      target.AudioFile,
		TimeWithinFile: target.Begin,
	}

	if wasPlaying || graceResume {
		e.handle.Play()
		e.playing = true
		e.startTickerLocked()
	}

	e.emitLocked(true)
	return nil
}

// SkipForward moves the play head ahead within the open audio file,
// clamped to the file bounds, and reconciles the landing time back to
// the entry that owns it.
func (e *Engine) SkipForward(ctx context.Context, seconds float64) error {
	return e.skip(ctx, seconds)
}

// SkipBackward is SkipForward with the sign flipped.
func (e *Engine) SkipBackward(ctx context.Context, seconds float64) error {
	return e.skip(ctx, -seconds)
}

func (e *Engine) skip(ctx context.Context, delta float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return domainerrors.ErrBookNotLoaded
	}
	if e.handle == nil {
		if err := e.openCurrentLocked(); err != nil {
			return err
		}
	}

	target := e.handle.Position() + delta
	if target < 0 {
		target = 0
	}
	if d := e.handle.Duration(); d > 0 && target > d {
		target = d
	}

	e.handle.Seek(target)
	e.pos.TimeWithinFile = target
	e.reconcileOwnerLocked(target)

	e.emitLocked(true)
	return nil
}

// reconcileOwnerLocked points (section, entry) at the entry of the
// current audio file owning absolute time t, crossing entry and
// section boundaries when the clamp landed outside the current
// entry's window. Times in unmapped gaps keep the nearest entry.
func (e *Engine) reconcileOwnerLocked(t float64) {
	cur := e.sections[e.pos.SectionIndex].Entries[e.pos.EntryIndex]
	if t >= cur.Begin && t < cur.End {
		return
	}

	type candidate struct {
		section, entry int
		begin, end     float64
	}
	var last *candidate
	for si := range e.sections {
		for ei, en := range e.sections[si].Entries {
			if en.AudioFile != e.pos.AudioFile {
				continue
			}
			if t >= en.Begin && t < en.End {
				e.pos.SectionIndex = si
				e.pos.EntryIndex = ei
				return
			}
			// First entry starting past t: t sits in a gap before it.
			if en.Begin > t {
				if last == nil {
					e.pos.SectionIndex = si
					e.pos.EntryIndex = ei
				} else {
					e.pos.SectionIndex = last.section
					e.pos.EntryIndex = last.entry
				}
				return
			}
			last = &candidate{section: si, entry: ei, begin: en.Begin, end: en.End}
		}
	}
	if last != nil {
		e.pos.SectionIndex = last.section
		e.pos.EntryIndex = last.entry
	}
}

// SetRate applies a playback rate to the live handle immediately.
// Rate feeds the snapshot projections, not the tick period.
func (e *Engine) SetRate(rate float64) error {
	if rate <= 0 {
		return domainerrors.Validationf("playback rate must be positive, got %v", rate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rate = rate
	if e.handle != nil {
		e.handle.SetRate(rate)
	}
	if e.loaded {
		e.emitLocked(true)
	}
	return nil
}

// SetVolume applies a volume in [0,1] to the live handle immediately.
func (e *Engine) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return domainerrors.Validationf("volume must be within [0,1], got %v", v)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = v
	if e.handle != nil {
		e.handle.SetVolume(v)
	}
	if e.loaded {
		e.emitLocked(true)
	}
	return nil
}

// CurrentState returns a fresh snapshot, false when no book is loaded.
func (e *Engine) CurrentState() (domain.PlaybackSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return domain.PlaybackSnapshot{}, false
	}
	return e.snapshotLocked(), true
}

// Cleanup stops playback, releases the audio handle, clears all book
// state and drops every subscriber. The engine returns to unloaded
// and can load again.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	e.releaseLocked()
	e.loaded = false
	e.bookID = ""
	e.title = ""
	e.sections = nil
	e.pos = domain.PlaybackPosition{}
	e.lastSnapshot = nil
	e.mu.Unlock()

	e.subMu.Lock()
	e.subs = make(map[string]*Subscription)
	e.subMu.Unlock()
}

// Close stops the dispatch loop for process shutdown. The engine is
// unusable afterwards.
func (e *Engine) Close() error {
	e.Cleanup()
	close(e.done)
	e.wg.Wait()
	return nil
}

// releaseLocked stops the ticker and closes the handle.
func (e *Engine) releaseLocked() {
	e.stopTickerLocked()
	e.playing = false
	if e.handle != nil {
		if err := e.handle.Close(); err != nil {
			e.logger.Warn("audio handle close failed", slog.Any("error", err))
		}
		e.handle = nil
	}
}

// openCurrentLocked opens the current entry's audio file and seeks to
// the held position.
func (e *Engine) openCurrentLocked() error {
	entry, ok := e.sections.EntryAt(e.pos)
	if !ok {
		return domainerrors.InvalidPositionf("position out of bounds: section %d entry %d",
			e.pos.SectionIndex, e.pos.EntryIndex)
	}
	if err := e.ensureHandleLocked(entry.AudioFile); err != nil {
		return err
	}
	e.handle.Seek(e.pos.TimeWithinFile)
	return nil
}

// ensureHandleLocked makes sure the handle plays the wanted file. The
// replacement opens before the old handle closes so a failed open
// leaves the engine usable.
func (e *Engine) ensureHandleLocked(file string) error {
	if e.handle != nil && e.pos.AudioFile == file {
		return nil
	}

	next, err := e.opener.Open(file)
	if err != nil {
		return domainerrors.AudioLoadFailed(file).WithCause(err)
	}
	next.SetRate(e.rate)
	next.SetVolume(e.volume)

	if e.handle != nil {
		if cerr := e.handle.Close(); cerr != nil {
			e.logger.Warn("audio handle close failed", slog.Any("error", cerr))
		}
	}
	e.handle = next
	return nil
}

func (e *Engine) startTickerLocked() {
	if e.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	e.tickerStop = stop

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
}

// tick is the advancement timer body; it re-enters the engine mutex.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing || e.handle == nil || !e.loaded {
		return
	}

	t := e.handle.Position()
	e.pos.TimeWithinFile = t

	entry, ok := e.sections.EntryAt(e.pos)
	if !ok {
		return
	}

	if t >= entry.End-e.opts.AdvanceEpsilon {
		e.advanceLocked()
		return
	}
	e.emitLocked(false)
}

// advanceLocked moves to the next entry in the section, else the first
// entry of the next narrated section, else pauses at end of book.
func (e *Engine) advanceLocked() {
	section := e.pos.SectionIndex
	entry := e.pos.EntryIndex + 1

	if entry >= len(e.sections[section].Entries) {
		next, ok := e.sections.NextNarratedFrom(section + 1)
		if !ok {
			e.logger.Info("end of book reached", slog.String("book_id", e.bookID))
			e.pauseLocked()
			return
		}
		section, entry = next, 0
	}

	target := e.sections[section].Entries[entry]
	if err := e.ensureHandleLocked(target.AudioFile); err != nil {
		e.logger.Error("advance failed to open next file",
			slog.String("file", target.AudioFile),
			slog.Any("error", err))
		e.pauseLocked()
		return
	}

	// Same-file advancement keeps the running clock; a new file starts
	// at the entry begin and resumes because we are mid-playback.
	if e.pos.AudioFile != target.AudioFile {
		e.handle.Seek(target.Begin)
		e.handle.Play()
		e.pos.TimeWithinFile = target.Begin
	}
	e.pos.SectionIndex = section
	e.pos.EntryIndex = entry
	e.pos.AudioFile = target.AudioFile

	e.emitLocked(true)
}
