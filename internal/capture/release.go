package capture

import "sync"

// ReleaseHub fans the push-to-talk release signal out to whoever holds a
// subscription. Subscriptions exist only while a capture is in progress.
type ReleaseHub struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

func NewReleaseHub() *ReleaseHub {
	return &ReleaseHub{listeners: make(map[int]func())}
}

// Subscribe registers fn and returns its disposer. The disposer may be
// called any number of times.
func (h *ReleaseHub) Subscribe(fn func()) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Release signals every current subscriber.
func (h *ReleaseHub) Release() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of registered subscribers.
func (h *ReleaseHub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
