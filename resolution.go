package pumped

import (
	"context"
	"runtime/debug"
)

// resolutionStack is the immutable, functional in-flight set for one
// top-level Resolve/Exec call. Each dependency projection pushes onto it
// before recursing; because push returns a new stack rather than mutating
// the caller's, concurrent resolutions sharing no call chain never
// interfere, and the "pop" on return is implicit (the caller just goes on
// holding its own, unextended, stack value).
type resolutionStack struct {
	chain []AnyAtom
	set   map[any]bool
}

func newResolutionStack() *resolutionStack {
	return &resolutionStack{}
}

func (st *resolutionStack) push(key any, a AnyAtom) (*resolutionStack, error) {
	if st.set[key] {
		labels := make([]string, 0, len(st.chain)+1)
		for _, at := range st.chain {
			labels = append(labels, at.Label())
		}
		labels = append(labels, a.Label())
		return nil, &CircularDependencyError{Chain: labels}
	}
	set := make(map[any]bool, len(st.set)+1)
	for k := range st.set {
		set[k] = true
	}
	set[key] = true
	return &resolutionStack{
		chain: append(append([]AnyAtom(nil), st.chain...), a),
		set:   set,
	}, nil
}

// safeInvoke runs fn, converting a recovered panic into a *FactoryFailure so
// a misbehaving factory fails its entry instead of taking down the caller's
// goroutine.
func safeInvoke(fn func() (any, error)) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FactoryFailure{Panic: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// entryFor returns the scope-owned entry for atom, creating it (and its
// type-erased factory/cleanup-driver closures) on first access.
func entryFor[T any](s *Scope, atom *Atom[T]) *atomEntry {
	key := any(atom)

	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e
	}

	e := newAtomEntry()
	e.atom = atom
	e.computeFactory = func() (any, error) {
		if p, ok := s.lookupPreset(key); ok {
			return s.resolvePreset(p, newResolutionStack())
		}

		exts := s.extensionsSnapshot()
		rc := &ResolveCtx{scope: s, entry: e, tagView: newTagView(s.tags), stack: newResolutionStack()}
		op := &Operation{Kind: OpResolve, Atom: atom, Scope: s}
		next := func() (any, error) {
			v, err := atom.factory(rc)
			return v, err
		}
		val, err := safeInvoke(func() (any, error) { return composeWrap(context.Background(), exts, op, next) })
		if err != nil {
			for _, ext := range exts {
				ext.OnError(err, op, s)
			}
		}
		return val, err
	}
	s.entries[key] = e
	return e
}

// Resolve resolves atom's value against s: returns the cached value if
// resolved, waits on and shares an in-flight resolution if one is running,
// or runs the factory (through every registered extension) if the entry is
// idle or previously failed.
func Resolve[T any](s *Scope, atom *Atom[T]) (T, error) {
	return resolveAtomWithStack(s, atom, newResolutionStack())
}

func resolveAtomWithStack[T any](s *Scope, atom *Atom[T], stack *resolutionStack) (T, error) {
	var zero T

	if err := s.awaitReady(); err != nil {
		return zero, err
	}
	if s.isDisposed() {
		return zero, ErrScopeDisposed
	}

	e := entryFor(s, atom)

	e.mu.Lock()
	switch e.state {
	case stateResolved:
		v := e.value
		e.mu.Unlock()
		return v.(T), nil
	case stateResolving:
		// An atom already on this call's own stack is a cycle: waiting on
		// its pending channel would wait on ourselves forever.
		if _, cerr := stack.push(any(atom), atom); cerr != nil {
			e.mu.Unlock()
			return zero, cerr
		}
		ch := e.pending
		e.mu.Unlock()
		<-ch
		e.mu.Lock()
		if e.state == stateFailed {
			err := e.err
			e.mu.Unlock()
			return zero, err
		}
		v := e.value
		e.mu.Unlock()
		return v.(T), nil
	}

	// idle or failed: claim the resolving transition in the same critical
	// section as the state check above, so a second concurrent caller can
	// never also observe idle and also start a factory run.
	nstack, err := stack.push(any(atom), atom)
	if err != nil {
		e.mu.Unlock()
		return zero, err
	}

	ch := make(chan struct{})
	e.state = stateResolving
	e.pending = ch
	e.mu.Unlock()
	e.notify(EventResolving)

	if p, ok := s.lookupPreset(any(atom)); ok {
		val, perr := s.resolvePreset(p, nstack)
		settleAndClose(e, ch, val, perr, s)
		if perr != nil {
			return zero, perr
		}
		return val.(T), nil
	}

	exts := s.extensionsSnapshot()
	rc := &ResolveCtx{scope: s, entry: e, tagView: newTagView(s.tags), stack: nstack}
	op := &Operation{Kind: OpResolve, Atom: atom, Scope: s}
	next := func() (any, error) {
		v, err := atom.factory(rc)
		return v, err
	}

	val, ferr := safeInvoke(func() (any, error) { return composeWrap(context.Background(), exts, op, next) })
	if ferr != nil {
		for _, ext := range exts {
			ext.OnError(ferr, op, s)
		}
	}

	settleAndClose(e, ch, val, ferr, s)

	if ferr != nil {
		return zero, ferr
	}
	return val.(T), nil
}

func settleAndClose(e *atomEntry, ch chan struct{}, val any, err error, s *Scope) {
	e.mu.Lock()
	pending := e.pendingInvalidate
	e.pendingInvalidate = false
	if err != nil {
		e.state = stateFailed
		e.err = err
		e.value = nil
	} else {
		e.state = stateResolved
		e.value = val
		e.err = nil
	}
	e.pending = nil
	e.mu.Unlock()
	close(ch)

	if err != nil {
		e.notify(EventFailed)
	} else {
		e.notify(EventResolved)
	}

	if pending && s != nil {
		s.settleEntry(e, e.computeFactory)
	}
}
