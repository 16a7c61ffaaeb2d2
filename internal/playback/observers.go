package playback

import (
	"log/slog"
	"time"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/id"
)

// Subscription is the opaque unsubscribe handle returned by Subscribe.
type Subscription struct {
	id     string
	engine *Engine
	fn     func(domain.PlaybackSnapshot)
}

// Cancel removes the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.engine.subMu.Lock()
	delete(s.engine.subs, s.id)
	s.engine.subMu.Unlock()
}

// Subscribe registers a snapshot observer. Registration synchronously
// replays the current snapshot (if any) so new subscribers are never
// left stale; later snapshots arrive through the dispatch loop on
// transitions.
func (e *Engine) Subscribe(fn func(domain.PlaybackSnapshot)) *Subscription {
	sub := &Subscription{
		id:     id.MustGenerate("sub"),
		engine: e,
		fn:     fn,
	}

	e.subMu.Lock()
	e.subs[sub.id] = sub
	e.subMu.Unlock()

	e.mu.Lock()
	var replay *domain.PlaybackSnapshot
	if e.lastSnapshot != nil {
		snap := *e.lastSnapshot
		replay = &snap
	}
	e.mu.Unlock()

	if replay != nil {
		fn(*replay)
	}
	return sub
}

// dispatch fans queued snapshots out to subscribers. Callbacks run
// outside both locks so they may call back into the engine, including
// Cancel.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case snap := <-e.events:
			e.subMu.RLock()
			fns := make([]func(domain.PlaybackSnapshot), 0, len(e.subs))
			for _, sub := range e.subs {
				fns = append(fns, sub.fn)
			}
			e.subMu.RUnlock()

			for _, fn := range fns {
				fn(snap)
			}
		case <-e.done:
			return
		}
	}
}

// emitLocked queues a fresh snapshot for fan-out. Unforced emissions
// while playing are throttled so steady ticks do not flood observers;
// transitions always pass force.
func (e *Engine) emitLocked(force bool) {
	now := time.Now()
	if !force && now.Sub(e.lastEmit) < e.opts.EmitThrottle {
		return
	}
	e.lastEmit = now

	snap := e.snapshotLocked()
	e.lastSnapshot = &snap

	select {
	case e.events <- snap:
	default:
		e.logger.Warn("snapshot channel full, dropping emission",
			slog.String("book_id", snap.BookID))
	}
}

// snapshotLocked builds the immutable state value. Elapsed math is
// recomputed from the section list every time, never cached across a
// position change.
func (e *Engine) snapshotLocked() domain.PlaybackSnapshot {
	t := e.pos.TimeWithinFile
	if e.handle != nil {
		t = e.handle.Position()
	}

	elapsed := e.sections.ElapsedAt(e.pos, t)

	var fragment, label string
	if entry, ok := e.sections.EntryAt(e.pos); ok {
		fragment = entry.AnchorID
		label = e.sections[e.pos.SectionIndex].Label
	}

	return domain.PlaybackSnapshot{
		IsPlaying:       e.playing,
		CurrentTime:     t,
		Duration:        e.fileDurationLocked(),
		SectionIndex:    e.pos.SectionIndex,
		EntryIndex:      e.pos.EntryIndex,
		CurrentFragment: fragment,
		ChapterLabel:    label,
		ChapterElapsed:  elapsed.Chapter,
		ChapterTotal:    elapsed.ChapterTotal,
		BookElapsed:     elapsed.Book,
		BookTotal:       elapsed.BookTotal,
		Rate:            e.rate,
		Volume:          e.volume,
		BookID:          e.bookID,
		Title:           e.title,
	}
}

// fileDurationLocked reports the open file's length, falling back to
// the last mapped clip end for the file when the handle cannot say.
func (e *Engine) fileDurationLocked() float64 {
	if e.handle != nil {
		if d := e.handle.Duration(); d > 0 {
			return d
		}
	}

	var max float64
	for _, s := range e.sections {
		for _, en := range s.Entries {
			if en.AudioFile == e.pos.AudioFile && en.End > max {
				max = en.End
			}
		}
	}
	return max
}
