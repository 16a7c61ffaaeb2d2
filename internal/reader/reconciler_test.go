package reader_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylineapp/storyline-core/internal/audio"
	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/playback"
	"github.com/storylineapp/storyline-core/internal/reader"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type highlightCall struct {
	section int
	anchor  string
	seek    bool
}

type fakeBridge struct {
	mu         sync.Mutex
	highlights []highlightCall
	locators   []domain.Locator
	clears     int
	visibleIDs []string
	visibleErr error
	visQueries int
}

func (b *fakeBridge) GoToHref(context.Context, string) error { return nil }

func (b *fakeBridge) GoToFractionInSection(context.Context, int, float64) error { return nil }

func (b *fakeBridge) GoToBookFraction(context.Context, float64) error { return nil }

func (b *fakeBridge) GoToLocator(_ context.Context, loc domain.Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locators = append(b.locators, loc)
	return nil
}

func (b *fakeBridge) HighlightFragment(_ context.Context, section int, anchor string, seek bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlights = append(b.highlights, highlightCall{section: section, anchor: anchor, seek: seek})
	return nil
}

func (b *fakeBridge) ClearHighlight(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clears++
	return nil
}

func (b *fakeBridge) FullyVisibleElementIDs(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visQueries++
	if b.visibleErr != nil {
		return nil, b.visibleErr
	}
	return append([]string(nil), b.visibleIDs...), nil
}

func (b *fakeBridge) highlightCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.highlights)
}

func (b *fakeBridge) lastHighlight() highlightCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highlights[len(b.highlights)-1]
}

func (b *fakeBridge) locatorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locators)
}

func (b *fakeBridge) lastLocator() domain.Locator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locators[len(b.locators)-1]
}

func (b *fakeBridge) clearCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clears
}

type sinkCall struct {
	bookID string
	loc    domain.Locator
	ts     float64
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *fakeSink) SyncProgress(_ context.Context, bookID string, loc domain.Locator, ts float64) (domain.SyncOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{bookID: bookID, loc: loc, ts: ts})
	return domain.SyncQueued, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSink) last() sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions []domain.ListeningSession
}

func (f *fakeSessions) RecordSession(_ context.Context, session domain.ListeningSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeSessions) last() domain.ListeningSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func storySections() domain.Sections {
	return domain.Sections{
		{Index: 0, ID: "cover", Label: "Cover"},
		{Index: 1, ID: "c1", Label: "Chapter 1", Entries: []domain.NarrationEntry{
			{AnchorID: "p1", Href: "ch01.xhtml", AudioFile: "ch1.mp3", Begin: 0, End: 5, CumulativeAtEnd: 5},
			{AnchorID: "p2", Href: "ch01.xhtml", AudioFile: "ch1.mp3", Begin: 5, End: 9, CumulativeAtEnd: 9},
			{AnchorID: "p3", Href: "ch01.xhtml", AudioFile: "ch1.mp3", Begin: 9, End: 12, CumulativeAtEnd: 12},
		}},
		{Index: 2, ID: "c2", Label: "Chapter 2", Entries: []domain.NarrationEntry{
			{AnchorID: "p4", Href: "ch02.xhtml", AudioFile: "ch2.mp3", Begin: 0, End: 4, CumulativeAtEnd: 16},
		}},
	}
}

type harness struct {
	clock    *fakeClock
	engine   *playback.Engine
	bridge   *fakeBridge
	sink     *fakeSink
	sessions *fakeSessions
	rec      *reader.Reconciler
}

func newHarness(t *testing.T, syncEnabled bool) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opener := &audio.ClockOpener{
		DurationHints: map[string]float64{"ch1.mp3": 12, "ch2.mp3": 4},
		Now:           clock.Now,
	}
	logger := slog.New(slog.DiscardHandler)

	engine := playback.NewEngine(opener, logger, playback.Options{
		TickInterval: 5 * time.Millisecond,
		EmitThrottle: time.Millisecond,
		ResumeGrace:  time.Nanosecond,
	})
	t.Cleanup(func() { _ = engine.Close() })

	h := &harness{
		clock:    clock,
		engine:   engine,
		bridge:   &fakeBridge{},
		sink:     &fakeSink{},
		sessions: &fakeSessions{},
	}
	h.rec = reader.New(engine, h.bridge, h.sink, h.sessions, syncEnabled, reader.Options{
		SleepTick: time.Millisecond,
		DeviceID:  "dev_test",
	}, logger)
	t.Cleanup(func() { h.rec.Cleanup(context.Background()) })
	return h
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	require.NoError(t, h.rec.LoadBook(context.Background(), "book_1", "Test Book", storySections()))
}

func (h *harness) position(t *testing.T) (int, int) {
	t.Helper()
	snap, ok := h.engine.CurrentState()
	require.True(t, ok)
	return snap.SectionIndex, snap.EntryIndex
}

// play starts playback and waits for the snapshot to reach the
// reconciler, whose follow and flip decisions read the mirrored state.
func (h *harness) play(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Play(context.Background()))
	settle()
}

func settle() {
	time.Sleep(50 * time.Millisecond)
}

func TestHandleChapterJump_SyncEnabledSeeksWhilePaused(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	require.NoError(t, h.rec.HandleChapterJump(context.Background(), 2))

	section, entry := h.position(t)
	assert.Equal(t, 2, section)
	assert.Equal(t, 0, entry)

	snap, _ := h.engine.CurrentState()
	assert.False(t, snap.IsPlaying)
}

func TestHandleChapterJump_SkipsChapterWithoutNarration(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	require.NoError(t, h.rec.HandleChapterJump(context.Background(), 0))

	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 0, entry)
}

func TestHandleChapterJump_NoFollowWhenDisabledAndPaused(t *testing.T) {
	h := newHarness(t, false)
	h.load(t)

	require.NoError(t, h.rec.HandleChapterJump(context.Background(), 2))

	section, _ := h.position(t)
	assert.Equal(t, 1, section)
}

func TestHandleChapterJump_FollowsWhilePlaying(t *testing.T) {
	h := newHarness(t, false)
	h.load(t)
	h.play(t)

	require.NoError(t, h.rec.HandleChapterJump(context.Background(), 2))

	section, entry := h.position(t)
	assert.Equal(t, 2, section)
	assert.Equal(t, 0, entry)

	snap, _ := h.engine.CurrentState()
	assert.True(t, snap.IsPlaying)
}

func TestHandlePageNavigation_FirstPageSeeksFirstEntry(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.rec.HandleChapterJump(context.Background(), 2))

	require.NoError(t, h.rec.HandlePageNavigation(context.Background(), 1, 1))

	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 0, entry)
	assert.Zero(t, h.bridge.visQueries)
}

func TestHandlePageNavigation_LaterPagePicksFirstVisibleEntry(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.bridge.visibleIDs = []string{"p3", "p2"}

	require.NoError(t, h.rec.HandlePageNavigation(context.Background(), 1, 3))

	// Document order decides, not the order the renderer reported
	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 1, entry)
}

func TestHandlePageNavigation_NoVisibleMatchLeavesAudio(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.bridge.visibleIDs = []string{"not-narrated"}

	require.NoError(t, h.rec.HandlePageNavigation(context.Background(), 1, 3))

	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 0, entry)
}

func TestHandlePageNavigation_QueryFailureLeavesAudio(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.bridge.visibleErr = errors.New("renderer gone")

	require.NoError(t, h.rec.HandlePageNavigation(context.Background(), 1, 2))

	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 0, entry)
}

func TestHandlePageNavigation_NoFollowWhenDisabledAndPaused(t *testing.T) {
	h := newHarness(t, false)
	h.load(t)
	h.bridge.visibleIDs = []string{"p3"}

	require.NoError(t, h.rec.HandlePageNavigation(context.Background(), 1, 3))

	_, entry := h.position(t)
	assert.Equal(t, 0, entry)
	assert.Zero(t, h.bridge.visQueries)
}

func TestHandleExplicitSeek(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	ctx := context.Background()

	require.NoError(t, h.rec.HandleExplicitSeek(ctx, 1, "p3"))
	section, entry := h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 2, entry)

	// Text without audio alignment is a silent no-op
	require.NoError(t, h.rec.HandleExplicitSeek(ctx, 1, "unaligned"))
	section, entry = h.position(t)
	assert.Equal(t, 1, section)
	assert.Equal(t, 2, entry)
}

func TestHighlightFollowsEntryAdvancement(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.engine.Play(context.Background()))

	h.clock.Advance(5100 * time.Millisecond)

	require.Eventually(t, func() bool {
		return h.bridge.highlightCount() > 0
	}, time.Second, 5*time.Millisecond)

	got := h.bridge.lastHighlight()
	assert.Equal(t, 1, got.section)
	assert.Equal(t, "p2", got.anchor)
	assert.True(t, got.seek)
}

func TestProgressForwardedOnPause(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.engine.Play(context.Background()))

	h.clock.Advance(2 * time.Second)
	h.engine.Pause()

	require.Eventually(t, func() bool {
		return h.sink.count() > 0
	}, time.Second, 5*time.Millisecond)

	got := h.sink.last()
	assert.Equal(t, "book_1", got.bookID)
	assert.Equal(t, "ch01.xhtml", got.loc.Href)
	assert.Equal(t, []string{"p1"}, got.loc.Locations.Fragments)
	require.NotNil(t, got.loc.Locations.Progression)
	assert.InDelta(t, 2.0/12.0, *got.loc.Locations.Progression, 0.01)
	require.NotNil(t, got.loc.Locations.TotalProgression)
	assert.InDelta(t, 2.0/16.0, *got.loc.Locations.TotalProgression, 0.01)
	assert.Positive(t, got.ts)
}

func TestLoadBookDoesNotForwardProgress(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	settle()
	assert.Zero(t, h.sink.count())
}

func TestRestorePosition_SeeksAudioAndRenderer(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	loc := domain.Locator{
		Href:      "ch01.xhtml",
		Locations: domain.Locations{Fragments: []string{"p2"}},
	}
	h.rec.RestorePosition(context.Background(), loc)

	sec, entry := h.position(t)
	assert.Equal(t, 1, sec)
	assert.Equal(t, 1, entry)

	require.Equal(t, 1, h.bridge.locatorCount())
	assert.Equal(t, loc, h.bridge.lastLocator())
}

func TestRestorePosition_StaleAnchorLeavesAudioAtStart(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	loc := domain.Locator{
		Href:      "ch01.xhtml",
		Locations: domain.Locations{Fragments: []string{"ghost"}},
	}
	h.rec.RestorePosition(context.Background(), loc)

	sec, entry := h.position(t)
	assert.Equal(t, 1, sec)
	assert.Equal(t, 0, entry)
	assert.Equal(t, 1, h.bridge.locatorCount())
}

func TestSessionRecordedOnPause(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.engine.Play(context.Background()))

	h.clock.Advance(2 * time.Second)
	h.engine.Pause()

	require.Eventually(t, func() bool {
		return h.sessions.count() > 0
	}, time.Second, 5*time.Millisecond)

	got := h.sessions.last()
	assert.Equal(t, "book_1", got.BookID)
	assert.InDelta(t, 0.0, got.StartSeconds, 0.1)
	assert.InDelta(t, 2.0, got.EndSeconds, 0.1)
	assert.Equal(t, 1.0, got.Rate)
	assert.Equal(t, "dev_test", got.DeviceID)
}

func TestSleepTimer_FixedExpiryPausesThroughTogglePath(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.engine.Play(context.Background()))

	require.NoError(t, h.rec.StartSleepTimer(1))
	status := h.rec.Sleep()
	assert.Equal(t, "fixed", status.Mode)
	assert.Positive(t, status.RemainingSeconds)
	assert.LessOrEqual(t, status.RemainingSeconds, 60)

	require.Eventually(t, func() bool {
		snap, ok := h.engine.CurrentState()
		return ok && !snap.IsPlaying
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "off", h.rec.Sleep().Mode)

	// Pausing through the toggle path still syncs progress
	require.Eventually(t, func() bool {
		return h.sink.count() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestSleepTimer_InvalidMinutes(t *testing.T) {
	h := newHarness(t, true)

	require.Error(t, h.rec.StartSleepTimer(0))
	require.Error(t, h.rec.StartSleepTimer(-3))
	assert.Equal(t, "off", h.rec.Sleep().Mode)
}

func TestSleepTimer_CancelClears(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.rec.StartSleepTimer(5))
	assert.Equal(t, "fixed", h.rec.Sleep().Mode)

	h.rec.CancelSleepTimer()
	assert.Equal(t, "off", h.rec.Sleep().Mode)
}

func TestSleepTimer_ChapterEndFires(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	require.NoError(t, h.engine.SeekToEntry(context.Background(), 2, 0))
	require.NoError(t, h.engine.Play(context.Background()))

	h.rec.StartSleepAtChapterEnd()
	assert.Equal(t, "chapter", h.rec.Sleep().Mode)

	// Chapter 2 runs 4s; inside the final half second the timer fires
	h.clock.Advance(3700 * time.Millisecond)

	require.Eventually(t, func() bool {
		snap, ok := h.engine.CurrentState()
		return ok && !snap.IsPlaying
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "off", h.rec.Sleep().Mode)
}

func TestFlip_ImmediateWhenMostlyOffScreen(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.play(t)

	h.rec.HandleElementVisibility(context.Background(), reader.ElementVisibility{
		AnchorID:       "p1",
		VisibleRatio:   0.05,
		OffScreenRatio: 0.95,
	})

	require.Eventually(t, func() bool {
		return h.bridge.highlightCount() > 0
	}, time.Second, 5*time.Millisecond)

	got := h.bridge.lastHighlight()
	assert.Equal(t, 1, got.section)
	assert.Equal(t, "p1", got.anchor)
	assert.True(t, got.seek)
}

func TestFlip_DebounceSpacesFlips(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.play(t)
	ctx := context.Background()

	signal := reader.ElementVisibility{AnchorID: "p1", VisibleRatio: 0.05, OffScreenRatio: 0.95}
	h.rec.HandleElementVisibility(ctx, signal)

	require.Eventually(t, func() bool {
		return h.bridge.highlightCount() == 1
	}, time.Second, 5*time.Millisecond)

	h.rec.HandleElementVisibility(ctx, signal)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.bridge.highlightCount())

	require.Eventually(t, func() bool {
		return h.bridge.highlightCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFlip_ScheduledProportionalToVisibleDuration(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.play(t)

	// Entry p1 runs 5s: 90% visible at 1x schedules the flip ~4.4s out
	h.rec.HandleElementVisibility(context.Background(), reader.ElementVisibility{
		AnchorID:       "p1",
		VisibleRatio:   0.9,
		OffScreenRatio: 0.1,
	})

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, h.bridge.highlightCount())
}

func TestFlip_IgnoredWhilePaused(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)

	h.rec.HandleElementVisibility(context.Background(), reader.ElementVisibility{
		AnchorID:       "p1",
		VisibleRatio:   0.05,
		OffScreenRatio: 0.95,
	})

	settle()
	assert.Zero(t, h.bridge.highlightCount())
}

func TestCleanup(t *testing.T) {
	h := newHarness(t, true)
	h.load(t)
	h.play(t)

	h.rec.Cleanup(context.Background())

	snap, ok := h.engine.CurrentState()
	require.True(t, ok)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 1, h.bridge.clearCount())
	assert.Equal(t, "off", h.rec.Sleep().Mode)

	// Observer is gone: further transitions reach no one
	before := h.bridge.highlightCount()
	require.NoError(t, h.engine.Play(context.Background()))
	h.clock.Advance(5100 * time.Millisecond)
	settle()
	assert.Equal(t, before, h.bridge.highlightCount())
}

func TestSetSyncEnabled(t *testing.T) {
	h := newHarness(t, false)
	assert.False(t, h.rec.SyncEnabled())

	h.rec.SetSyncEnabled(true)
	assert.True(t, h.rec.SyncEnabled())
}
