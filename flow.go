package pumped

import "reflect"

// AnyFlow is the type-erased view of a Flow[In, R], used for extension
// Operation reporting and debug/graph introspection.
type AnyFlow interface {
	Tags() tagLayer
	Label() string
}

// Flow is the short-lived, input-driven counterpart to Atom: rather than a
// single cached value, each Exec call runs the factory fresh against a
// freshly created child ExecutionContext. Flow still declares a dependency
// record the same way an atom does (Value/Ref/Required/OptionalTag/All),
// resolved once per Exec call before the factory runs.
type Flow[In, R any] struct {
	factory func(*ExecutionContext, *ResolveCtx, In) (R, error)
	parse   func(any) (In, error)
	deps    []Dependency
	tags    tagLayer
}

func (f *Flow[In, R]) Tags() tagLayer { return f.tags }

func (f *Flow[In, R]) Label() string {
	if name, ok := flowNameTag.Optional(newTagView(f.tags)); ok {
		return name
	}
	return reflect.TypeOf((*R)(nil)).Elem().String()
}

var flowNameTag = NewTag[string]("flow.name")

// FlowOption configures a Flow at construction.
type FlowOption[In any] func(*flowOptions[In])

type flowOptions[In any] struct {
	tags  []anyTagged
	parse func(any) (In, error)
}

// WithFlowTag attaches a tag to the flow being declared. The In type
// parameter must be given explicitly at the call site (e.g.
// WithFlowTag[MyInput](someTag, val)) since it can't be inferred from tag
// and val alone.
func WithFlowTag[In, V any](tag Tag[V], val V) FlowOption[In] {
	return func(o *flowOptions[In]) { o.tags = append(o.tags, tag.With(val)) }
}

// WithFlowName attaches the conventional flow.name tag.
func WithFlowName[In any](name string) FlowOption[In] {
	return WithFlowTag[In](flowNameTag, name)
}

// WithFlowInputParse attaches the parser Exec runs against a RawInput
// request, per spec.md §9.2: a parsed Input is used verbatim; a RawInput
// always runs through this parser; supplying both on one request is a
// caller error (ErrAmbiguousInput), never a silent precedence choice.
func WithFlowInputParse[In any](parse func(any) (In, error)) FlowOption[In] {
	return func(o *flowOptions[In]) { o.parse = parse }
}

func buildFlowOptions[In any](opts []FlowOption[In]) flowOptions[In] {
	var o flowOptions[In]
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func finalizeFlow[In, R any](f *Flow[In, R], o flowOptions[In]) *Flow[In, R] {
	f.tags = newTagLayer(o.tags...)
	f.parse = o.parse
	return f
}

// NewFlow0 declares a flow with no dependencies of its own (it may still
// reach into the scope via ResolveCtx.Scope inside the factory).
func NewFlow0[In, R any](factory func(*ExecutionContext, *ResolveCtx, In) (R, error), opts ...FlowOption[In]) *Flow[In, R] {
	f := &Flow[In, R]{factory: factory}
	return finalizeFlow(f, buildFlowOptions(opts))
}

// NewFlow1 declares a flow with one dependency.
func NewFlow1[In, D1, R any](d1 Dependency, factory func(*ExecutionContext, *ResolveCtx, In, D1) (R, error), opts ...FlowOption[In]) *Flow[In, R] {
	f := &Flow[In, R]{
		deps: []Dependency{d1},
		factory: func(ec *ExecutionContext, rc *ResolveCtx, in In) (R, error) {
			var zero R
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1})
			if err != nil {
				return zero, err
			}
			return factory(ec, rc, in, vals[0].(D1))
		},
	}
	return finalizeFlow(f, buildFlowOptions(opts))
}

// NewFlow2 declares a flow with two dependencies.
func NewFlow2[In, D1, D2, R any](d1, d2 Dependency, factory func(*ExecutionContext, *ResolveCtx, In, D1, D2) (R, error), opts ...FlowOption[In]) *Flow[In, R] {
	f := &Flow[In, R]{
		deps: []Dependency{d1, d2},
		factory: func(ec *ExecutionContext, rc *ResolveCtx, in In) (R, error) {
			var zero R
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2})
			if err != nil {
				return zero, err
			}
			return factory(ec, rc, in, vals[0].(D1), vals[1].(D2))
		},
	}
	return finalizeFlow(f, buildFlowOptions(opts))
}

// NewFlow3 declares a flow with three dependencies.
func NewFlow3[In, D1, D2, D3, R any](d1, d2, d3 Dependency, factory func(*ExecutionContext, *ResolveCtx, In, D1, D2, D3) (R, error), opts ...FlowOption[In]) *Flow[In, R] {
	f := &Flow[In, R]{
		deps: []Dependency{d1, d2, d3},
		factory: func(ec *ExecutionContext, rc *ResolveCtx, in In) (R, error) {
			var zero R
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2, d3})
			if err != nil {
				return zero, err
			}
			return factory(ec, rc, in, vals[0].(D1), vals[1].(D2), vals[2].(D3))
		},
	}
	return finalizeFlow(f, buildFlowOptions(opts))
}
