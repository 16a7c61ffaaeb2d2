package scanner

import "sync"

// progressTracker serializes progress updates for the optional
// callback.
type progressTracker struct {
	mu       sync.Mutex
	callback func(Progress)
	progress Progress
}

func newProgressTracker(callback func(Progress)) *progressTracker {
	return &progressTracker{
		callback: callback,
		progress: Progress{Phase: PhaseWalking},
	}
}

func (p *progressTracker) setPhase(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progress.Phase == phase {
		return
	}
	p.progress.Phase = phase
	p.progress.Current = 0
	p.notifyLocked()
}

func (p *progressTracker) increment(currentItem string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Current++
	p.progress.CurrentItem = currentItem
	p.notifyLocked()
}

func (p *progressTracker) addError() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Errors++
	p.notifyLocked()
}

func (p *progressTracker) notifyLocked() {
	if p.callback != nil {
		p.callback(p.progress)
	}
}
