package reader

import (
	"context"
	"log/slog"
	"time"

	domainerrors "github.com/storylineapp/storyline-core/internal/errors"
)

// HandleElementVisibility paces page flips against audio progress.
// An element mostly off-screen flips now; otherwise the flip is
// scheduled to land as the narrated element finishes crossing
// off-screen: entry duration scaled by the visible share, sped up by
// the playback rate, pulled in by a small early offset. Each signal
// invalidates the previously scheduled flip.
func (r *Reconciler) HandleElementVisibility(ctx context.Context, ev ElementVisibility) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveSnap || !r.lastSnap.IsPlaying {
		return
	}
	snap := r.lastSnap

	if r.flipTimer != nil {
		r.flipTimer.Stop()
		r.flipTimer = nil
	}

	var delay time.Duration
	if ev.OffScreenRatio < r.opts.FlipOffScreenThreshold {
		rate := snap.Rate
		if rate <= 0 {
			rate = 1
		}
		entry, ok := r.sections.EntryAt(currentPosition(snap))
		if !ok {
			return
		}
		delay = time.Duration(entry.ClipDuration() * ev.VisibleRatio / rate * float64(time.Second))
		if delay > r.opts.FlipEarlyOffset {
			delay -= r.opts.FlipEarlyOffset
		}
	}

	// Flips never land closer together than the debounce window
	if since := time.Since(r.lastFlip); since < r.opts.FlipDebounce {
		if floor := r.opts.FlipDebounce - since; delay < floor {
			delay = floor
		}
	}

	r.flipTimer = time.AfterFunc(delay, r.flipNow)
}

// flipNow re-enters the mutex from the flip timer and pages the view
// to the entry being narrated.
func (r *Reconciler) flipNow() {
	r.mu.Lock()
	r.flipTimer = nil
	if !r.haveSnap || !r.lastSnap.IsPlaying || r.lastSnap.CurrentFragment == "" {
		r.mu.Unlock()
		return
	}
	snap := r.lastSnap
	r.lastFlip = time.Now()
	r.mu.Unlock()

	if err := r.bridge.HighlightFragment(context.Background(), snap.SectionIndex, snap.CurrentFragment, true); err != nil {
		r.logger.Warn("page flip failed",
			slog.String("anchor", snap.CurrentFragment), slog.Any("error", err))
	}
}

// SleepStatus reports the active sleep timer, if any.
type SleepStatus struct {
	Mode             string `json:"mode"` // off, fixed or chapter
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
}

// StartSleepTimer arms a fixed-duration sleep timer. The countdown
// ticks once per second regardless of playback state and replaces
// any timer already running.
func (r *Reconciler) StartSleepTimer(minutes int) error {
	if minutes <= 0 {
		return domainerrors.Validationf("sleep minutes must be positive, got %d", minutes)
	}

	r.mu.Lock()
	r.stopSleepLocked()
	r.sleepChapterEnd = false
	r.sleepRemaining = minutes * 60
	done := make(chan struct{})
	r.sleepDone = done
	r.mu.Unlock()

	go r.sleepLoop(done)
	r.logger.Info("sleep timer started", slog.Int("minutes", minutes))
	return nil
}

// StartSleepAtChapterEnd arms the end-of-chapter variant, evaluated
// against live chapter progress while playing.
func (r *Reconciler) StartSleepAtChapterEnd() {
	r.mu.Lock()
	r.stopSleepLocked()
	r.sleepChapterEnd = true
	r.mu.Unlock()

	r.logger.Info("sleep timer armed for chapter end")
}

// CancelSleepTimer clears both variants.
func (r *Reconciler) CancelSleepTimer() {
	r.mu.Lock()
	r.stopSleepLocked()
	r.sleepChapterEnd = false
	r.mu.Unlock()
}

// Sleep reports the active timer state.
func (r *Reconciler) Sleep() SleepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.sleepChapterEnd:
		return SleepStatus{Mode: "chapter"}
	case r.sleepDone != nil:
		return SleepStatus{Mode: "fixed", RemainingSeconds: r.sleepRemaining}
	default:
		return SleepStatus{Mode: "off"}
	}
}

func (r *Reconciler) stopSleepLocked() {
	if r.sleepDone != nil {
		close(r.sleepDone)
		r.sleepDone = nil
	}
	r.sleepRemaining = 0
}

func (r *Reconciler) sleepLoop(done chan struct{}) {
	ticker := time.NewTicker(r.opts.SleepTick)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.sleepDone != done {
				// superseded by a newer timer
				r.mu.Unlock()
				return
			}
			r.sleepRemaining--
			if r.sleepRemaining > 0 {
				r.mu.Unlock()
				continue
			}
			r.sleepDone = nil
			r.sleepRemaining = 0
			r.mu.Unlock()

			r.expireSleep()
			return
		}
	}
}

// expireSleep pauses through the normal toggle path so the pause
// transition forwards progress like any user-initiated pause.
func (r *Reconciler) expireSleep() {
	r.mu.Lock()
	playing := r.haveSnap && r.lastSnap.IsPlaying
	r.mu.Unlock()

	r.logger.Info("sleep timer expired", slog.Bool("was_playing", playing))
	if !playing {
		return
	}
	if err := r.engine.TogglePlayPause(context.Background()); err != nil {
		r.logger.Warn("sleep pause failed", slog.Any("error", err))
	}
}
