package pumped

// Dependency is one entry of an atom's or flow's dependency record. Each
// constructor below implements a different projection rule from spec.md
// §4.3's dependency-kind table; Derive1..Derive5 and NewFlow1..NewFlow3 accept
// any mix of them, positionally, and hand the projected values straight to
// the user factory.
type Dependency interface {
	project(s *Scope, view *tagView, stack *resolutionStack) (any, error)
}

// valueDependency projects a direct atom dependency to its resolved value.
// It always participates in resolution (and therefore in circular
// detection) before the owning factory runs.
type valueDependency[T any] struct {
	atom *Atom[T]
}

// Value declares a direct-atom dependency: the owning atom or flow factory
// receives the dependency's resolved value, not a handle.
func Value[T any](atom *Atom[T]) Dependency {
	return valueDependency[T]{atom: atom}
}

func (d valueDependency[T]) project(s *Scope, _ *tagView, stack *resolutionStack) (any, error) {
	return resolveAtomWithStack(s, d.atom, stack)
}

// RefAtom exposes the underlying atom for debug/graph introspection
// (extensions.GraphDebugExtension walks this to draw dependency edges).
func (d valueDependency[T]) RefAtom() AnyAtom { return d.atom }

// refDependency projects a controller handle over the wrapped atom. By
// default the atom is NOT resolved before the factory runs (the factory
// decides whether/when to call Get); Resolved() changes that.
type refDependency[T any] struct {
	atom     *Atom[T]
	resolved bool
}

// RefOption configures a Ref dependency.
type RefOption func(*refOptions)

type refOptions struct {
	resolved bool
}

// Resolved makes a Ref dependency resolve its atom before the owning
// factory is invoked, handing back a controller over an already-settled
// value.
func Resolved() RefOption {
	return func(o *refOptions) { o.resolved = true }
}

// Ref declares a controller-wrapper dependency: the owning factory receives
// a *Controller[T] it can Get/Set/Invalidate/Release/subscribe on.
func Ref[T any](atom *Atom[T], opts ...RefOption) Dependency {
	var o refOptions
	for _, opt := range opts {
		opt(&o)
	}
	return refDependency[T]{atom: atom, resolved: o.resolved}
}

func (d refDependency[T]) project(s *Scope, _ *tagView, stack *resolutionStack) (any, error) {
	if d.resolved {
		if _, err := resolveAtomWithStack(s, d.atom, stack); err != nil {
			return nil, err
		}
	}
	return &Controller[T]{atom: d.atom, scope: s}, nil
}

// RefAtom exposes the underlying atom for debug/graph introspection.
func (d refDependency[T]) RefAtom() AnyAtom { return d.atom }

// requiredTagDependency projects a tag's value, erroring if absent with no
// default.
type requiredTagDependency[T any] struct {
	tag Tag[T]
}

// Required declares a tag-executor dependency that must resolve to a value
// (either present on the view or via the tag's default).
func Required[T any](tag Tag[T]) Dependency {
	return requiredTagDependency[T]{tag: tag}
}

func (d requiredTagDependency[T]) project(_ *Scope, view *tagView, _ *resolutionStack) (any, error) {
	return d.tag.Required(view)
}

// Optional wraps an optionally-present tag projection.
type Optional[T any] struct {
	Value   T
	Present bool
}

type optionalTagDependency[T any] struct {
	tag Tag[T]
}

// OptionalTag declares a tag-executor dependency that never errors; the
// factory receives an Optional[T] indicating whether a value was found.
func OptionalTag[T any](tag Tag[T]) Dependency {
	return optionalTagDependency[T]{tag: tag}
}

func (d optionalTagDependency[T]) project(_ *Scope, view *tagView, _ *resolutionStack) (any, error) {
	val, ok := d.tag.Optional(view)
	return Optional[T]{Value: val, Present: ok}, nil
}

// allTagDependency projects every value attached under a tag across the
// merged view, in insertion order. The tag's default never contributes.
type allTagDependency[T any] struct {
	tag Tag[T]
}

// All declares a tag-executor dependency collecting every matching value
// across the merged tag view.
func All[T any](tag Tag[T]) Dependency {
	return allTagDependency[T]{tag: tag}
}

func (d allTagDependency[T]) project(_ *Scope, view *tagView, _ *resolutionStack) (any, error) {
	return d.tag.All(view), nil
}

// AtomRef is implemented by dependency kinds that point at a concrete atom
// (Value and Ref, but not the tag-executor kinds). DependencyAtoms uses it
// to draw dependency-graph edges without caring which kind a declaration
// used.
type AtomRef interface {
	RefAtom() AnyAtom
}

// DependencyAtoms extracts the atoms a dependency record points at
// directly, skipping any tag-executor entries (which don't name an atom).
func DependencyAtoms(deps []Dependency) []AnyAtom {
	var out []AnyAtom
	for _, d := range deps {
		if ref, ok := d.(AtomRef); ok {
			out = append(out, ref.RefAtom())
		}
	}
	return out
}

// projectAll runs each dependency's projection in declared order, so that
// an atom or flow factory never observes a partial dependency record:
// every entry is resolved (or erroring) before the first is handed back. The
// stack is threaded through value/ref projections so a transitive cycle is
// caught no matter how many dependency layers deep it occurs.
func projectAll(s *Scope, view *tagView, stack *resolutionStack, deps []Dependency) ([]any, error) {
	out := make([]any, len(deps))
	for i, d := range deps {
		v, err := d.project(s, view, stack)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
