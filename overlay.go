package siteauth

import "sync"

// Overlay is the single loading flag consumed by the full-screen overlay.
// It is toggled around long-running session resolution.
type Overlay struct {
	mu        sync.Mutex
	active    bool
	listeners map[int]func(bool)
	next      int
}

func NewOverlay() *Overlay {
	return &Overlay{listeners: make(map[int]func(bool))}
}

// Begin raises the flag.
func (o *Overlay) Begin() { o.set(true) }

// End lowers the flag.
func (o *Overlay) End() { o.set(false) }

// Active reports the current flag state.
func (o *Overlay) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Subscribe registers a listener called whenever the flag changes.
func (o *Overlay) Subscribe(fn func(bool)) (cancel func()) {
	o.mu.Lock()
	id := o.next
	o.next++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

func (o *Overlay) set(v bool) {
	o.mu.Lock()
	if o.active == v {
		o.mu.Unlock()
		return
	}
	o.active = v
	listeners := make([]func(bool), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
