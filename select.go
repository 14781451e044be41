package pumped

import "sync"

// SelectHandle derives a projected, de-duplicated slice of an atom's value:
// subscribers are only notified when selector's output actually changes,
// per equal, not on every underlying resolution. The underlying Controller
// is only subscribed to while at least one SelectHandle subscriber is
// attached; the last unsubscribe tears that down again.
type SelectHandle[T, S any] struct {
	mu       sync.Mutex
	ctrl     *Controller[T]
	selector func(T) S
	equal    func(S, S) bool

	current  S
	hasValue bool

	nextID    int
	listeners map[int]func(S)
	unsub     func()
}

// Select builds a handle projecting c's value through selector, suppressing
// notifications when the projection is unchanged by equal.
func Select[T, S any](c *Controller[T], selector func(T) S, equal func(S, S) bool) *SelectHandle[T, S] {
	return &SelectHandle[T, S]{
		ctrl:      c,
		selector:  selector,
		equal:     equal,
		listeners: make(map[int]func(S)),
	}
}

// Value returns selector applied to the atom's currently cached value (as
// Controller.Peek sees it); ok is false when no value is cached.
func (h *SelectHandle[T, S]) Value() (S, bool) {
	if v, ok := h.ctrl.Peek(); ok {
		return h.selector(v), true
	}
	var zero S
	return zero, false
}

// Subscribe registers fn to run whenever the projection changes. The first
// subscriber seeds the projection from the atom's cached value, if any;
// Subscribe never triggers a resolution itself.
// Returns an unsubscribe function; once every subscriber has unsubscribed,
// the handle detaches from the underlying Controller entirely.
func (h *SelectHandle[T, S]) Subscribe(fn func(S)) func() {
	h.mu.Lock()
	if h.unsub == nil {
		h.unsub = h.ctrl.On(EventResolved, h.onResolved)
		if v, ok := h.ctrl.Peek(); ok {
			h.current = h.selector(v)
			h.hasValue = true
		}
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		empty := len(h.listeners) == 0
		var teardown func()
		if empty && h.unsub != nil {
			teardown = h.unsub
			h.unsub = nil
		}
		h.mu.Unlock()
		if teardown != nil {
			teardown()
		}
	}
}

func (h *SelectHandle[T, S]) onResolved() {
	v, ok := h.ctrl.Peek()
	if !ok {
		return
	}
	next := h.selector(v)

	h.mu.Lock()
	if h.hasValue && h.equal(h.current, next) {
		h.mu.Unlock()
		return
	}
	h.current = next
	h.hasValue = true
	fns := make([]func(S), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
