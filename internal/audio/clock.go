package audio

import (
	"sync"
	"time"
)

// ClockOpener produces handles whose position advances with the wall
// clock: elapsed × rate while playing. The daemon uses it to pace
// narration when no audio device is driven directly, and tests inject
// a fake clock through Now.
type ClockOpener struct {
	// DurationHints maps an audio path to its length in seconds,
	// typically the timing table's last clip end per file.
	DurationHints map[string]float64

	// Now substitutes the wall clock. Nil means time.Now.
	Now func() time.Time
}

// Open returns a paused handle at position 0.
func (o *ClockOpener) Open(path string) (Handle, error) {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return &ClockHandle{
		now:      now,
		duration: o.DurationHints[path],
		rate:     1.0,
		volume:   1.0,
	}, nil
}

// ClockHandle advances its position by elapsed wall time times the
// playback rate while playing.
type ClockHandle struct {
	mu sync.Mutex

	now      func() time.Time
	duration float64

	playing bool
	base    float64   // position when the clock was last anchored
	anchor  time.Time // wall time of the last anchoring

	rate   float64
	volume float64
}

// position folds the running clock into base. Callers hold mu.
func (h *ClockHandle) position() float64 {
	pos := h.base
	if h.playing {
		pos += h.now().Sub(h.anchor).Seconds() * h.rate
	}
	if h.duration > 0 && pos > h.duration {
		pos = h.duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// rebase freezes the current position into base and re-anchors the
// clock. Callers hold mu.
func (h *ClockHandle) rebase() {
	h.base = h.position()
	h.anchor = h.now()
}

func (h *ClockHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing {
		return
	}
	h.anchor = h.now()
	h.playing = true
}

func (h *ClockHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return
	}
	h.rebase()
	h.playing = false
}

func (h *ClockHandle) SetRate(rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rate <= 0 {
		return
	}
	h.rebase()
	h.rate = rate
}

func (h *ClockHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	h.volume = v
}

func (h *ClockHandle) Seek(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if h.duration > 0 && seconds > h.duration {
		seconds = h.duration
	}
	h.base = seconds
	h.anchor = h.now()
}

func (h *ClockHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position()
}

func (h *ClockHandle) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

// Volume reports the last set volume. Not part of Handle; used by
// state snapshots.
func (h *ClockHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// Rate reports the current playback rate.
func (h *ClockHandle) Rate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rate
}

func (h *ClockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebase()
	h.playing = false
	return nil
}
