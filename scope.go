package pumped

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Scope is the resolution and lifecycle boundary for a tree of atoms: one
// cached entry per atom, one set of attached tags, one ordered extension
// pipeline, and one invalidation chain runner serializing every
// invalidate/set against every other.
type Scope struct {
	entriesMu sync.Mutex
	entries   map[any]*atomEntry

	presets map[any]presetEntry

	tags       tagLayer
	extMu      sync.RWMutex
	extensions []Extension
	// extRegistered preserves the order extensions were passed to
	// WithExtension, independent of the Order()-sorted extensions slice
	// used for Init/Wrap — Dispose runs extensions in reverse of this.
	extRegistered []Extension

	chainMu     sync.Mutex
	chainActive bool
	chainQueue  []*chainItem
	chainQueued map[*atomEntry]bool
	chainSeen   map[*atomEntry]bool
	chainPath   []string

	readyCh  chan struct{}
	readyErr error

	disposeMu sync.Mutex
	disposed  bool
}

type chainItem struct {
	entry *atomEntry
	run   func()
}

// ScopeOption configures a Scope at construction.
type ScopeOption func(*Scope)

// WithScopeTag attaches a tag value visible to every atom and flow resolved
// in this scope, below flow-call and context-local tags in priority.
func WithScopeTag[T any](tag Tag[T], val T) ScopeOption {
	return func(s *Scope) {
		tg := tag.With(val)
		if s.tags == nil {
			s.tags = tagLayer{}
		}
		tg.attach(s.tags)
	}
}

// WithExtension registers an extension, sorted into the scope's pipeline by
// Order() (lower runs earlier, i.e. more outer, for Init/Wrap; equal Order()
// keeps registration order). Dispose ignores Order() and runs in reverse
// registration order.
func WithExtension(ext Extension) ScopeOption {
	return func(s *Scope) {
		s.extensions = append(s.extensions, ext)
		sort.SliceStable(s.extensions, func(i, j int) bool {
			return s.extensions[i].Order() < s.extensions[j].Order()
		})
		s.extRegistered = append(s.extRegistered, ext)
	}
}

// CreateScope builds a scope and starts its extension Init pipeline in the
// background; callers that need to observe an Init failure before resolving
// anything should call Ready.
func CreateScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		entries: make(map[any]*atomEntry),
		presets: make(map[any]presetEntry),
		readyCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.initExtensions()
	return s
}

func (s *Scope) initExtensions() {
	for _, ext := range s.extensions {
		if err := ext.Init(s); err != nil {
			s.readyErr = fmt.Errorf("initializing extension %s: %w", ext.Name(), err)
			break
		}
	}
	close(s.readyCh)
}

// Ready blocks until every extension's Init has run (or ctx is done),
// returning the first Init error, if any.
func (s *Scope) Ready(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return s.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scope) awaitReady() error {
	<-s.readyCh
	return s.readyErr
}

func (s *Scope) extensionsSnapshot() []Extension {
	s.extMu.RLock()
	defer s.extMu.RUnlock()
	out := make([]Extension, len(s.extensions))
	copy(out, s.extensions)
	return out
}

func (s *Scope) isDisposed() bool {
	s.disposeMu.Lock()
	defer s.disposeMu.Unlock()
	return s.disposed
}

func (s *Scope) lookupEntry(key any) (*atomEntry, bool) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// ---- invalidation / set / update chain ----

// invalidate is the type-erased entry point behind Controller.Invalidate. Per
// spec.md §4.1: an atom that is currently resolving defers the request
// (pendingInvalidate) instead of re-entering; an idle atom has nothing
// cached to invalidate and is a no-op; anything else joins the chain.
func (s *Scope) invalidate(key any, e *atomEntry) error {
	e.mu.Lock()
	switch e.state {
	case stateResolving:
		e.pendingInvalidate = true
		e.mu.Unlock()
		return nil
	case stateIdle:
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	return s.runChain(e, e.computeFactory, true)
}

// settleEntry runs run's special step (used for Set/Update's fixed-value
// compute, and for replaying a deferred self-invalidation) through the same
// chain machinery ordinary invalidation uses, without extension wrapping —
// the wrapping already happened, if at all, inside the compute closure
// itself (computeFactory wraps; a literal Set/Update value does not, since
// it isn't a factory invocation).
func (s *Scope) settleEntry(e *atomEntry, compute func() (any, error)) {
	runCleanupsFor(s, e, "invalidate")

	e.mu.Lock()
	e.state = stateResolving
	ch := make(chan struct{})
	e.pending = ch
	e.mu.Unlock()
	e.notify(EventResolving)

	val, err := compute()

	settleAndClose(e, ch, val, err, s)
}

func runCleanupsFor(s *Scope, e *atomEntry, context string) {
	errs := e.runCleanups()
	if len(errs) == 0 {
		return
	}
	exts := s.extensionsSnapshot()
	for _, cerr := range errs {
		ce := &CleanupError{Atom: e.atom, Err: cerr, Context: context}
		handled := false
		for _, ext := range exts {
			if ext.OnCleanupError(ce) {
				handled = true
				break
			}
		}
		_ = handled
	}
}

// setValue and updateValue back Controller.Set/Update: both go through the
// chain so a Set racing a pending invalidate on the same atom is serialized
// the same way two invalidates would be.
func (s *Scope) setValue(e *atomEntry, value any) error {
	e.mu.Lock()
	state := e.state
	err := e.err
	e.mu.Unlock()

	if state == stateIdle {
		return ErrControllerIdle
	}
	if state == stateFailed {
		return err
	}

	return s.runChain(e, func() (any, error) { return value, nil }, false)
}

func (s *Scope) updateValue(e *atomEntry, transform func(any) any) error {
	e.mu.Lock()
	state := e.state
	err := e.err
	current := e.value
	e.mu.Unlock()

	if state == stateIdle {
		return ErrControllerIdle
	}
	if state == stateFailed {
		return err
	}

	return s.runChain(e, func() (any, error) { return transform(current), nil }, false)
}

// runChain enqueues (entry, run) onto the scope's single invalidation chain
// and, if no chain is currently draining, becomes the runner: it drains the
// queue one step at a time, re-checking for newly-enqueued items after
// every step so a listener that reacts to one step by invalidating another
// atom joins this same chain instead of starting a concurrent one.
//
// dedup applies only to plain invalidate() calls, matching spec.md's
// "duplicate invalidate calls on the same atom are deduplicated" rule; a
// Set/Update always enqueues its own step.
func (s *Scope) runChain(e *atomEntry, run func() (any, error), dedup bool) error {
	item := &chainItem{entry: e, run: func() { s.settleEntry(e, run) }}

	s.chainMu.Lock()
	if dedup {
		if s.chainQueued == nil {
			s.chainQueued = map[*atomEntry]bool{}
		}
		if s.chainQueued[e] {
			s.chainMu.Unlock()
			return nil
		}
		s.chainQueued[e] = true
	}
	s.chainQueue = append(s.chainQueue, item)

	if s.chainActive {
		s.chainMu.Unlock()
		return nil
	}

	s.chainActive = true
	if s.chainSeen == nil {
		s.chainSeen = map[*atomEntry]bool{}
	}
	s.chainPath = nil
	s.chainMu.Unlock()

	var chainErr error
	for {
		s.chainMu.Lock()
		if len(s.chainQueue) == 0 {
			s.chainActive = false
			s.chainQueue = nil
			s.chainQueued = nil
			s.chainSeen = nil
			s.chainPath = nil
			s.chainMu.Unlock()
			break
		}
		step := s.chainQueue[0]
		s.chainQueue = s.chainQueue[1:]
		if s.chainQueued != nil {
			delete(s.chainQueued, step.entry)
		}
		if s.chainSeen[step.entry] {
			chain := append(append([]string(nil), s.chainPath...), step.entry.atom.Label())
			s.chainActive = false
			s.chainQueue = nil
			s.chainQueued = nil
			s.chainSeen = nil
			s.chainPath = nil
			s.chainMu.Unlock()
			chainErr = &InvalidationLoopError{Chain: chain}
			break
		}
		s.chainSeen[step.entry] = true
		s.chainPath = append(s.chainPath, step.entry.atom.Label())
		s.chainMu.Unlock()

		step.run()
	}
	return chainErr
}

// ---- lifecycle ----

// ControllerFor returns a handle over atom without resolving it eagerly,
// mirroring Ref(atom)'s semantics for code that already holds a *Scope
// rather than assembling a dependency record.
func ControllerFor[T any](s *Scope, atom *Atom[T]) *Controller[T] {
	return &Controller[T]{atom: atom, scope: s}
}

// Release discards atom's cached value (if any), running its cleanups, and
// reverts its entry to idle. Any Controller bound to atom observes the
// reversion immediately since it only ever holds a back-reference.
func Release[T any](s *Scope, atom *Atom[T]) {
	e, ok := s.lookupEntry(any(atom))
	if !ok {
		return
	}
	runCleanupsFor(s, e, "release")
	e.mu.Lock()
	e.state = stateIdle
	e.value = nil
	e.err = nil
	e.data = nil
	e.mu.Unlock()
}

// Dispose runs every extension's Dispose (reverse registration order) while
// entries are still live, then runs every entry's cleanups (LIFO within each
// entry; the order across entries is not defined). A disposed scope rejects
// any further Resolve/Exec with ErrScopeDisposed.
func (s *Scope) Dispose() error {
	s.disposeMu.Lock()
	if s.disposed {
		s.disposeMu.Unlock()
		return nil
	}
	s.disposed = true
	s.disposeMu.Unlock()

	s.extMu.RLock()
	registered := make([]Extension, len(s.extRegistered))
	copy(registered, s.extRegistered)
	s.extMu.RUnlock()

	for i := len(registered) - 1; i >= 0; i-- {
		ext := registered[i]
		if err := ext.Dispose(s); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}

	s.entriesMu.Lock()
	entries := make([]*atomEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.entriesMu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		runCleanupsFor(s, entries[i], "dispose")
	}

	return nil
}

// On subscribes to state-transition events on atom's entry directly from
// the scope, without constructing a Controller. Returns an unsubscribe
// function.
func On[T any](s *Scope, atom *Atom[T], event Event, l Listener) func() {
	e := entryFor(s, atom)
	return e.on(event, l)
}
