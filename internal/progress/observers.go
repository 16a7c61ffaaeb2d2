package progress

import (
	"log/slog"

	"github.com/storylineapp/storyline-core/internal/id"
)

// Subscription is the opaque unsubscribe handle returned by Subscribe.
type Subscription struct {
	id     string
	engine *Engine
	fn     func(SyncEvent)
}

// Cancel removes the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.engine.subMu.Lock()
	delete(s.engine.subs, s.id)
	s.engine.subMu.Unlock()
}

// Subscribe registers a sync event observer. Registration
// synchronously replays the current pending count so new subscribers
// start from known state.
func (e *Engine) Subscribe(fn func(SyncEvent)) *Subscription {
	sub := &Subscription{
		id:     id.MustGenerate("sub"),
		engine: e,
		fn:     fn,
	}

	e.subMu.Lock()
	e.subs[sub.id] = sub
	e.subMu.Unlock()

	e.mu.Lock()
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()

	fn(SyncEvent{Pending: pending})
	return sub
}

// SetPendingCountCallback installs the count-changed hook and invokes
// it once with the current count. Pass nil to clear.
func (e *Engine) SetPendingCountCallback(fn func(int)) {
	e.subMu.Lock()
	e.countFn = fn
	e.subMu.Unlock()

	if fn == nil {
		return
	}
	e.mu.Lock()
	pending := e.unsyncedCountLocked()
	e.mu.Unlock()
	fn(pending)
}

// dispatch fans queued events out to subscribers. Callbacks run
// outside both locks so they may call back into the engine.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.events:
			e.subMu.RLock()
			fns := make([]func(SyncEvent), 0, len(e.subs))
			for _, sub := range e.subs {
				fns = append(fns, sub.fn)
			}
			e.subMu.RUnlock()

			for _, fn := range fns {
				fn(ev)
			}
		case <-e.done:
			return
		}
	}
}

// notify queues an event for fan-out and fires the count callback
// when the pending count moved.
func (e *Engine) notify(ev SyncEvent) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("sync event dropped, observer backlog full",
			slog.String("book_id", ev.BookID))
	}
	countChanged := ev.Pending != e.lastCount
	e.lastCount = ev.Pending
	e.mu.Unlock()

	if !countChanged {
		return
	}
	e.subMu.RLock()
	fn := e.countFn
	e.subMu.RUnlock()
	if fn != nil {
		fn(ev.Pending)
	}
}
