package pumped

import "fmt"

// CircularDependencyError is returned when resolving an atom would re-enter
// an atom already on the current resolution stack.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Chain)
}

// InvalidationLoopError is returned when the invalidation chain runner sees
// the same atom a second time within one chain.
type InvalidationLoopError struct {
	Chain []string
}

func (e *InvalidationLoopError) Error() string {
	return fmt.Sprintf("invalidation loop detected: %v", e.Chain)
}

// ParsePhase names where a ParseError originated.
type ParsePhase string

const (
	ParsePhaseTag       ParsePhase = "tag"
	ParsePhaseFlowInput ParsePhase = "flow-input"
)

// ParseError wraps a validation failure from a tag parser or a flow's input
// parser.
type ParseError struct {
	Phase ParsePhase
	Label string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s) for %q: %v", e.Phase, e.Label, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// TagMissingError is returned during dependency projection when a required
// tag has neither a value on the source nor a default.
type TagMissingError struct {
	Label string
}

func (e *TagMissingError) Error() string {
	return fmt.Sprintf("required tag %q not found", e.Label)
}

// ContextClosedError is returned by Exec, ExecFn, OnClose and SetTag when
// invoked on a context that has closed: a child whose single exec has
// returned, or a root after Close.
type ContextClosedError struct {
	ContextName string
}

func (e *ContextClosedError) Error() string {
	if e.ContextName != "" {
		return fmt.Sprintf("context closed: %s", e.ContextName)
	}
	return "context closed"
}

// FactoryFailure is the error a panicking atom or flow factory fails with:
// Panic holds the recovered value and Stack the trace. An error a factory
// returns normally is stored and returned as-is, not wrapped in a
// FactoryFailure.
type FactoryFailure struct {
	Cause   error
	Panic   any
	Stack   []byte
}

func (e *FactoryFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("factory panicked: %v", e.Panic)
	}
	return e.Cause.Error()
}

func (e *FactoryFailure) Unwrap() error {
	return e.Cause
}

// ErrScopeDisposed is returned by operations attempted after Scope.Dispose
// has completed.
var ErrScopeDisposed = fmt.Errorf("scope disposed")

// ErrControllerIdle is returned by Controller.Get when the bound atom has
// never been resolved.
var ErrControllerIdle = fmt.Errorf("controller: atom is idle")

// ErrAmbiguousInput is returned by ExecutionContext.Exec when both Input and
// RawInput are supplied.
var ErrAmbiguousInput = fmt.Errorf("exec: Input and RawInput are mutually exclusive")
