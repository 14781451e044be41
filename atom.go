package pumped

import "reflect"

// Atom is the immutable declaration of a long-lived, scope-cached value:
// a factory, its dependency record, and whatever tags were attached at
// declaration time. Atoms are created outside any scope and may be shared
// by any number of scopes; identity is the pointer itself.
type Atom[T any] struct {
	factory   func(*ResolveCtx) (T, error)
	deps      []Dependency
	tags      tagLayer
	keepAlive bool
}

// AnyAtom is the type-erased view of an Atom[T], used for tag introspection,
// preset bookkeeping, and error/debug reporting where the value type isn't
// relevant.
type AnyAtom interface {
	Tags() tagLayer
	Label() string
	Deps() []Dependency
}

// Tags returns the tag layer attached at declaration time.
func (a *Atom[T]) Tags() tagLayer { return a.tags }

// Deps returns the atom's declared dependency record, for debug/graph
// introspection (e.g. extensions.GraphDebugExtension).
func (a *Atom[T]) Deps() []Dependency { return a.deps }

// Label returns a best-effort debug name: the atom.name tag if attached,
// otherwise the value type's string form.
func (a *Atom[T]) Label() string {
	if name, ok := atomNameTag.Optional(newTagView(a.tags)); ok {
		return name
	}
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

var atomNameTag = NewTag[string]("atom.name")

// AtomOption configures an Atom at construction: tags and the keepAlive
// flag (keepAlive atoms are exempt from any future GC collaborator feature;
// see spec.md §9's open question on GC, deliberately not implemented here).
type AtomOption func(*atomOptions)

type atomOptions struct {
	tags      []anyTagged
	keepAlive bool
}

// WithAtomTag attaches a tag to the atom being declared.
func WithAtomTag[V any](tag Tag[V], val V) AtomOption {
	return func(o *atomOptions) {
		o.tags = append(o.tags, tag.With(val))
	}
}

// WithAtomName attaches the conventional atom.name tag, used for debug
// labeling (error messages, the graph-debug extension).
func WithAtomName(name string) AtomOption {
	return WithAtomTag(atomNameTag, name)
}

// KeepAlive marks an atom as never eligible for an eventual GC collaborator
// feature. The core itself never collects atoms implicitly (spec.md §9),
// so today this is purely advisory metadata.
func KeepAlive() AtomOption {
	return func(o *atomOptions) { o.keepAlive = true }
}

func buildAtomOptions(opts []AtomOption) atomOptions {
	var o atomOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func finalizeAtom[T any](atom *Atom[T], o atomOptions) *Atom[T] {
	atom.tags = newTagLayer(o.tags...)
	atom.keepAlive = o.keepAlive
	for k := range atom.tags {
		trackAtomTag(k, atom)
	}
	return atom
}

// Provide declares an atom with no dependencies.
func Provide[T any](factory func(*ResolveCtx) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		factory: factory,
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Derive1 declares an atom with one dependency, projected per the
// Dependency constructor used to build d1 (Value/Ref/Required/OptionalTag/
// All).
func Derive1[T, D1 any](d1 Dependency, factory func(*ResolveCtx, D1) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		deps: []Dependency{d1},
		factory: func(rc *ResolveCtx) (T, error) {
			var zero T
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1})
			if err != nil {
				return zero, err
			}
			return factory(rc, vals[0].(D1))
		},
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Derive2 declares an atom with two dependencies.
func Derive2[T, D1, D2 any](d1, d2 Dependency, factory func(*ResolveCtx, D1, D2) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		deps: []Dependency{d1, d2},
		factory: func(rc *ResolveCtx) (T, error) {
			var zero T
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2})
			if err != nil {
				return zero, err
			}
			return factory(rc, vals[0].(D1), vals[1].(D2))
		},
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Derive3 declares an atom with three dependencies.
func Derive3[T, D1, D2, D3 any](d1, d2, d3 Dependency, factory func(*ResolveCtx, D1, D2, D3) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		deps: []Dependency{d1, d2, d3},
		factory: func(rc *ResolveCtx) (T, error) {
			var zero T
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2, d3})
			if err != nil {
				return zero, err
			}
			return factory(rc, vals[0].(D1), vals[1].(D2), vals[2].(D3))
		},
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Derive4 declares an atom with four dependencies.
func Derive4[T, D1, D2, D3, D4 any](d1, d2, d3, d4 Dependency, factory func(*ResolveCtx, D1, D2, D3, D4) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		deps: []Dependency{d1, d2, d3, d4},
		factory: func(rc *ResolveCtx) (T, error) {
			var zero T
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2, d3, d4})
			if err != nil {
				return zero, err
			}
			return factory(rc, vals[0].(D1), vals[1].(D2), vals[2].(D3), vals[3].(D4))
		},
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Derive5 declares an atom with five dependencies.
func Derive5[T, D1, D2, D3, D4, D5 any](d1, d2, d3, d4, d5 Dependency, factory func(*ResolveCtx, D1, D2, D3, D4, D5) (T, error), opts ...AtomOption) *Atom[T] {
	atom := &Atom[T]{
		deps: []Dependency{d1, d2, d3, d4, d5},
		factory: func(rc *ResolveCtx) (T, error) {
			var zero T
			vals, err := projectAll(rc.scope, rc.tagView, rc.stack, []Dependency{d1, d2, d3, d4, d5})
			if err != nil {
				return zero, err
			}
			return factory(rc, vals[0].(D1), vals[1].(D2), vals[2].(D3), vals[3].(D4), vals[4].(D5))
		},
	}
	return finalizeAtom(atom, buildAtomOptions(opts))
}

// Service declares an atom whose value is conventionally a record of
// methods taking a context as their first parameter. Per spec.md §3, a
// service is an atom with no runtime distinction — Service exists purely
// as a type-level signal to readers of the declaration site.
func Service[T any](factory func(*ResolveCtx) (T, error), opts ...AtomOption) *Atom[T] {
	return Provide(factory, opts...)
}

// Service1 is the one-dependency form of Service.
func Service1[T, D1 any](d1 Dependency, factory func(*ResolveCtx, D1) (T, error), opts ...AtomOption) *Atom[T] {
	return Derive1(d1, factory, opts...)
}

// Service2 is the two-dependency form of Service.
func Service2[T, D1, D2 any](d1, d2 Dependency, factory func(*ResolveCtx, D1, D2) (T, error), opts ...AtomOption) *Atom[T] {
	return Derive2(d1, d2, factory, opts...)
}
