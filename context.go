package pumped

import (
	"context"
	"fmt"
	"sync"
)

// ExecutionContext is a node in the hierarchical execution-context tree:
// one root per CreateContext call, one child per Exec/ExecFn call, each
// carrying its own isolated tag-keyed data store and LIFO close callbacks.
// A child auto-closes the instant its exec body returns. On a closed context,
// Exec, ExecFn, OnClose and SetTag return ContextClosedError; GetTag, HasTag,
// DeleteTag, ClearTags, GetOrSetTag and SeekTag do not check for closure and
// keep operating on the context's data store.
type ExecutionContext struct {
	mu      sync.Mutex
	parent  *ExecutionContext
	scope   *Scope
	ctx     context.Context
	data    map[*tagKey]any
	onClose []func()
	closed  bool
	name    string
}

// ContextOption configures a root ExecutionContext at CreateContext time.
type ContextOption func(*ExecutionContext)

// WithContextTag attaches a tag to the root context being created.
func WithContextTag[T any](tag Tag[T], val T) ContextOption {
	return func(ec *ExecutionContext) { ec.data[tag.key] = val }
}

// CreateContext builds a root ExecutionContext bound to scope, carrying ctx
// for cancellation. A nil ctx is treated as context.Background().
func CreateContext(ctx context.Context, s *Scope, opts ...ContextOption) *ExecutionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	ec := &ExecutionContext{scope: s, ctx: ctx, data: make(map[*tagKey]any)}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// Context returns the underlying context.Context, for cancellation checks
// or to pass along to an I/O call made from inside a factory.
func (ec *ExecutionContext) Context() context.Context { return ec.ctx }

func (ec *ExecutionContext) errIfClosed() error {
	ec.mu.Lock()
	closed := ec.closed
	name := ec.name
	ec.mu.Unlock()
	if closed {
		return &ContextClosedError{ContextName: name}
	}
	return nil
}

// OnClose registers fn to run, LIFO with every other registered callback,
// when this context closes (at the end of its owning Exec/ExecFn call, or
// explicitly via Close for a root context).
func (ec *ExecutionContext) OnClose(fn func()) error {
	if err := ec.errIfClosed(); err != nil {
		return err
	}
	ec.mu.Lock()
	ec.onClose = append(ec.onClose, fn)
	ec.mu.Unlock()
	return nil
}

// Close runs this context's close callbacks, most-recently-registered
// first. Idempotent: closing an already-closed context is a no-op.
func (ec *ExecutionContext) Close() {
	ec.mu.Lock()
	if ec.closed {
		ec.mu.Unlock()
		return
	}
	ec.closed = true
	callbacks := ec.onClose
	ec.onClose = nil
	ec.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
}

// SetTag stores val under tag in this context's own data store.
func SetTag[T any](ec *ExecutionContext, tag Tag[T], val T) error {
	if err := ec.errIfClosed(); err != nil {
		return err
	}
	ec.mu.Lock()
	ec.data[tag.key] = val
	ec.mu.Unlock()
	return nil
}

// GetTag returns tag's value in this context's own data store, not
// consulting ancestors or the tag's default.
func GetTag[T any](ec *ExecutionContext, tag Tag[T]) (T, bool) {
	ec.mu.Lock()
	v, ok := ec.data[tag.key]
	ec.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// HasTag reports whether tag has a value in this context's own data store.
func HasTag[T any](ec *ExecutionContext, tag Tag[T]) bool {
	ec.mu.Lock()
	_, ok := ec.data[tag.key]
	ec.mu.Unlock()
	return ok
}

// DeleteTag removes tag's value from this context's own data store, if any.
func DeleteTag[T any](ec *ExecutionContext, tag Tag[T]) {
	ec.mu.Lock()
	delete(ec.data, tag.key)
	ec.mu.Unlock()
}

// ClearTags removes every value from this context's own data store.
func (ec *ExecutionContext) ClearTags() {
	ec.mu.Lock()
	ec.data = make(map[*tagKey]any)
	ec.mu.Unlock()
}

// GetOrSetTag returns tag's existing value in this context if present, else
// computes, stores, and returns compute()'s result.
func GetOrSetTag[T any](ec *ExecutionContext, tag Tag[T], compute func() T) T {
	ec.mu.Lock()
	if v, ok := ec.data[tag.key]; ok {
		ec.mu.Unlock()
		return v.(T)
	}
	ec.mu.Unlock()
	v := compute()
	ec.mu.Lock()
	ec.data[tag.key] = v
	ec.mu.Unlock()
	return v
}

// SeekTag walks from ec up through every ancestor context, returning the
// first value found for tag. Unlike Tag.Optional, it never falls back to
// the tag's own default — an absent seek is simply not found.
func SeekTag[T any](ec *ExecutionContext, tag Tag[T]) (T, bool) {
	if v, ok := ec.seek(tag.key); ok {
		return v.(T), true
	}
	var zero T
	return zero, false
}

func (ec *ExecutionContext) seek(k *tagKey) (any, bool) {
	for cur := ec; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		v, ok := cur.data[k]
		cur.mu.Unlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// ancestorLayers collects ec's own data and every ancestor's, root-first,
// so a flow's merged tagView can let an inner (more specific) context
// override an outer one.
func ancestorLayers(ec *ExecutionContext) []tagLayer {
	var chain []*ExecutionContext
	for cur := ec; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	layers := make([]tagLayer, len(chain))
	for i, c := range chain {
		c.mu.Lock()
		layers[len(chain)-1-i] = tagLayer(c.data)
		c.mu.Unlock()
	}
	return layers
}

// ExecOption configures one Exec/ExecFn call's child context.
type ExecOption func(*execOptions)

type execOptions struct {
	tags []anyTagged
	name string
}

// WithExecTag attaches a tag visible only to this one exec call (and to
// anything it execs in turn, as an ancestor-context layer).
func WithExecTag[V any](tag Tag[V], val V) ExecOption {
	return func(o *execOptions) { o.tags = append(o.tags, tag.With(val)) }
}

// WithExecName overrides the child context's debug name.
func WithExecName(name string) ExecOption {
	return func(o *execOptions) { o.name = name }
}

func buildExecOptions(opts []ExecOption) execOptions {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// execLabel resolves the name used in ParseError and similar diagnostics:
// an explicit WithExecName wins, then the flow's own label, then a literal
// fallback for a flow with neither.
func execLabel(o execOptions, flowLabel string) string {
	if o.name != "" {
		return o.name
	}
	if flowLabel != "" {
		return flowLabel
	}
	return "anonymous"
}

// ExecRequest is the argument to Exec: exactly one of Input or RawInput may
// be supplied. RawInput always runs the flow's input parser; Input is used
// verbatim. Supplying both is ErrAmbiguousInput.
type ExecRequest[In, R any] struct {
	Flow     *Flow[In, R]
	Input    In
	HasInput bool
	RawInput any
	HasRaw   bool
	Opts     []ExecOption
}

// Exec runs req.Flow against a fresh child of ec, which auto-closes the
// instant the flow's factory returns (successfully, with an error, or via
// panic recovered into a *FactoryFailure).
func Exec[In, R any](ec *ExecutionContext, req ExecRequest[In, R]) (R, error) {
	var zero R
	if err := ec.errIfClosed(); err != nil {
		return zero, err
	}
	if req.HasInput && req.HasRaw {
		return zero, ErrAmbiguousInput
	}

	o := buildExecOptions(req.Opts)
	label := execLabel(o, req.Flow.Label())

	input := req.Input
	if req.HasRaw {
		if req.Flow.parse == nil {
			return zero, &ParseError{Phase: ParsePhaseFlowInput, Label: label, Cause: fmt.Errorf("flow has no input parser attached")}
		}
		parsed, err := req.Flow.parse(req.RawInput)
		if err != nil {
			return zero, &ParseError{Phase: ParsePhaseFlowInput, Label: label, Cause: err}
		}
		input = parsed
	}

	child := newChildContext(ec, o)
	defer child.Close()

	select {
	case <-child.ctx.Done():
		return zero, child.ctx.Err()
	default:
	}

	s := ec.scope
	if err := s.awaitReady(); err != nil {
		return zero, err
	}
	if s.isDisposed() {
		return zero, ErrScopeDisposed
	}

	layers := append([]tagLayer{req.Flow.Tags(), s.tags}, ancestorLayers(child)...)
	view := newTagView(layers...)
	stack := newResolutionStack()
	rc := &ResolveCtx{scope: s, tagView: view, stack: stack}

	exts := s.extensionsSnapshot()
	op := &Operation{Kind: OpExec, Flow: req.Flow, Scope: s}
	next := func() (any, error) {
		v, err := req.Flow.factory(child, rc, input)
		return v, err
	}
	val, err := safeInvoke(func() (any, error) { return composeWrap(child.ctx, exts, op, next) })
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, s)
		}
		return zero, err
	}
	return val.(R), nil
}

// ExecFnRequest is the argument to ExecFn, the dependency-free escape hatch
// for running an arbitrary function with its own child context (e.g. to
// group a handful of atom Gets under one name for debug/graph purposes).
// Params is passed through to Fn verbatim, after the context.
type ExecFnRequest[P, R any] struct {
	Fn     func(*ExecutionContext, P) (R, error)
	Params P
	Opts   []ExecOption
}

// ExecFn runs req.Fn (with req.Params) against a fresh child of ec,
// auto-closing afterward.
func ExecFn[P, R any](ec *ExecutionContext, req ExecFnRequest[P, R]) (R, error) {
	var zero R
	if err := ec.errIfClosed(); err != nil {
		return zero, err
	}

	o := buildExecOptions(req.Opts)
	child := newChildContext(ec, o)
	defer child.Close()

	select {
	case <-child.ctx.Done():
		return zero, child.ctx.Err()
	default:
	}

	val, err := safeInvoke(func() (any, error) {
		v, err := req.Fn(child, req.Params)
		return v, err
	})
	if err != nil {
		return zero, err
	}
	return val.(R), nil
}

func newChildContext(parent *ExecutionContext, o execOptions) *ExecutionContext {
	child := &ExecutionContext{
		parent: parent,
		scope:  parent.scope,
		ctx:    parent.ctx,
		data:   newTagLayer(o.tags...),
		name:   o.name,
	}
	return child
}
