package pumped

import "context"

// Extension provides hooks into the resolve/exec lifecycle. A scope's
// extensions run in Order() order (lower first) for Init and for Wrap, where
// a lower Order() is the outer layer and sees a request before any later one
// and its result last; among extensions of equal Order() the first-registered
// is outermost. Dispose runs in reverse registration order.
type Extension interface {
	Name() string
	Order() int

	// Init runs once, in Order(), right after the scope is constructed.
	// Scope.Ready blocks on every Init returning.
	Init(scope *Scope) error

	// Wrap intercepts an atom factory run (OpResolve, also for the re-run an
	// invalidate triggers) or a flow Exec (OpExec). Controller.Set/Update do
	// not pass through Wrap.
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError is notified after an operation's wrapped chain has settled
	// with an error, once per extension, outermost first.
	OnError(err error, op *Operation, scope *Scope)

	// OnCleanupError is offered every cleanup failure; returning true marks
	// it handled and stops the scope from trying the next extension.
	OnCleanupError(err *CleanupError) bool

	// Dispose runs once, in reverse registration order, before the scope
	// runs any entry's cleanups.
	Dispose(scope *Scope) error
}

// BaseExtension gives every hook a no-op default so an extension only has to
// implement the ones it cares about.
type BaseExtension struct {
	name  string
	order int
}

// NewBaseExtension creates a base extension with the conventional default
// order (100); embed it and override Order via WithOrder if ordering matters.
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name, order: 100}
}

func (e *BaseExtension) Name() string { return e.name }
func (e *BaseExtension) Order() int   { return e.order }

// SetOrder lets an embedding extension pick a non-default priority.
func (e *BaseExtension) SetOrder(order int) { e.order = order }

func (e *BaseExtension) Init(scope *Scope) error { return nil }

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, scope *Scope) {}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool { return false }

func (e *BaseExtension) Dispose(scope *Scope) error { return nil }

// CleanupError describes one failed cleanup, surfaced to extensions instead
// of being silently swallowed (spec.md's error-handling design: the core
// never hides a cleanup failure, it hands it to whoever is listening).
type CleanupError struct {
	Atom    AnyAtom
	Err     error
	Context string // "invalidate", "release", or "dispose"
}

func (e *CleanupError) Error() string { return e.Err.Error() }

// Operation describes the resolve or exec request an extension is wrapping.
type Operation struct {
	Kind  OperationKind
	Atom  AnyAtom
	Flow  AnyFlow
	Scope *Scope
}

// OperationKind is the kind of operation an Extension.Wrap call is guarding.
type OperationKind string

const (
	OpResolve    OperationKind = "resolve"
	OpInvalidate OperationKind = "invalidate"
	OpSet        OperationKind = "set"
	OpExec       OperationKind = "exec"
)

// composeWrap folds a scope's extensions around next: the first extension in
// exts is the outermost layer, so it sees the call first and the result last.
// Callers pass the scope's Order()-sorted slice, so the lowest Order() is
// outermost and, among equal Order(), the first-registered. This resolves
// spec.md §9's open question on extension composition order.
func composeWrap(ctx context.Context, exts []Extension, op *Operation, next func() (any, error)) (any, error) {
	wrapped := next
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		inner := wrapped
		wrapped = func() (any, error) { return ext.Wrap(ctx, inner, op) }
	}
	return wrapped()
}
