package pumped

// Controller is a reactive handle over one atom's entry in one scope. It is
// a back-reference, not an owner: releasing the entry (directly, or via
// scope Dispose) immediately reverts every outstanding Controller's
// observable state to idle, since a Controller never holds the entry
// itself, only the atom pointer and scope it would look the entry up in.
type Controller[T any] struct {
	atom  *Atom[T]
	scope *Scope
}

// State returns the bound atom's current lifecycle state in this scope.
func (c *Controller[T]) State() string {
	e, ok := c.scope.lookupEntry(any(c.atom))
	if !ok {
		return stateIdle.String()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.String()
}

// Peek returns the currently cached value (which may be stale, if the entry
// is mid-resolving after an invalidate) without triggering a resolution.
// ok is false when the entry is idle or failed, or resolving for the first
// time with no earlier value cached.
func (c *Controller[T]) Peek() (value T, ok bool) {
	e, exists := c.scope.lookupEntry(any(c.atom))
	if !exists {
		return value, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateResolved || (e.state == stateResolving && e.value != nil) {
		return e.value.(T), true
	}
	return value, false
}

// Get returns the resolved value, or the stored error if the entry is
// failed, or ErrControllerIdle if it has never been resolved. Unlike
// Resolve, Get never triggers a resolution itself.
func (c *Controller[T]) Get() (T, error) {
	var zero T
	e, exists := c.scope.lookupEntry(any(c.atom))
	if !exists {
		return zero, ErrControllerIdle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateResolved:
		return e.value.(T), nil
	case stateFailed:
		return zero, e.err
	case stateResolving:
		if e.value == nil {
			return zero, ErrControllerIdle
		}
		return e.value.(T), nil // stale value remains visible during re-resolution
	default:
		return zero, ErrControllerIdle
	}
}

// Resolve resolves the bound atom, exactly as Resolve(scope, atom) would.
func (c *Controller[T]) Resolve() (T, error) {
	return Resolve(c.scope, c.atom)
}

// Release discards the cached value and runs its cleanups, reverting the
// entry to idle.
func (c *Controller[T]) Release() {
	Release(c.scope, c.atom)
}

// Invalidate marks the entry for re-resolution: resolved/failed entries
// re-run their factory (keeping the stale value visible, for a resolved
// entry, until the new one settles); an entry currently resolving instead
// defers the request until that resolution completes; an idle entry is a
// no-op, since there is nothing cached to invalidate.
func (c *Controller[T]) Invalidate() error {
	e := entryFor(c.scope, c.atom)
	return c.scope.invalidate(any(c.atom), e)
}

// Set installs value directly, bypassing the factory entirely, through the
// same chain machinery invalidate uses. Fails with ErrControllerIdle if the
// atom has never been resolved, and returns the stored error (without
// changing state) if the entry is currently failed.
func (c *Controller[T]) Set(value T) error {
	e := entryFor(c.scope, c.atom)
	return c.scope.setValue(e, value)
}

// Update transforms the current resolved value in place, through the same
// chain machinery Set uses. Same idle/failed rules as Set.
func (c *Controller[T]) Update(fn func(T) T) error {
	e := entryFor(c.scope, c.atom)
	return c.scope.updateValue(e, func(cur any) any {
		var curT T
		if cur != nil {
			curT = cur.(T)
		}
		return fn(curT)
	})
}

// On subscribes to one of the entry's state-transition events. Returns an
// unsubscribe function.
func (c *Controller[T]) On(event Event, l Listener) func() {
	e := entryFor(c.scope, c.atom)
	return e.on(event, l)
}
