package store

import (
	"sync"
)

// watcher owns an unbounded FIFO of events and a goroutine that delivers
// them to the handler one at a time.
type watcher struct {
	prefix string
	fn     WatchFunc

	mu      sync.Mutex
	queue   []Event
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newWatcher(prefix string, fn WatchFunc) *watcher {
	w := &watcher{
		prefix: prefix,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue never blocks.
func (w *watcher) enqueue(ev Event) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.queue = nil
	w.mu.Unlock()
	close(w.done)
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if w.stopped || len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			ev := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			dispatch(w.fn, ev)
		}
	}
}

// fanout routes events to every watcher whose prefix matches.
type fanout struct {
	mu       sync.RWMutex
	nextID   WatchID
	watchers map[WatchID]*watcher
}

func newFanout() *fanout {
	return &fanout{watchers: make(map[WatchID]*watcher)}
}

func (f *fanout) add(prefix string, fn WatchFunc) WatchID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.watchers[f.nextID] = newWatcher(prefix, fn)
	return f.nextID
}

func (f *fanout) remove(id WatchID) error {
	f.mu.Lock()
	w, ok := f.watchers[id]
	delete(f.watchers, id)
	f.mu.Unlock()
	if !ok {
		return ErrWatchNotFound
	}
	w.stop()
	return nil
}

func (f *fanout) publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, w := range f.watchers {
		if hasPrefix(ev.Key, w.prefix) {
			w.enqueue(ev)
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	ws := f.watchers
	f.watchers = make(map[WatchID]*watcher)
	f.mu.Unlock()
	for _, w := range ws {
		w.stop()
	}
}
