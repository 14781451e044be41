package pumped

import (
	"sync"
	"weak"
)

// tagKey is the process-stable identity behind a Tag[T]. Keys are interned
// by label so that two Tag[T] values built from the same label string
// always share one key, which is what lets independent modules agree on a
// tag without importing each other's Tag variable.
type tagKey struct {
	label string

	mu      sync.Mutex
	tracked []func() AnyAtom // weak: each closure resolves to nil once its atom is collected
}

var tagRegistry sync.Map // string -> *tagKey

func internTagKey(label string) *tagKey {
	if v, ok := tagRegistry.Load(label); ok {
		return v.(*tagKey)
	}
	k := &tagKey{label: label}
	actual, _ := tagRegistry.LoadOrStore(label, k)
	return actual.(*tagKey)
}

// trackAtomTag records a weak reference to a, keyed generically so the
// weak.Pointer points at the atom itself rather than at a throwaway box
// that would be collected before the atom it describes.
func trackAtomTag[T any](k *tagKey, a *Atom[T]) {
	wp := weak.Make(a)
	k.mu.Lock()
	k.tracked = append(k.tracked, func() AnyAtom {
		if v := wp.Value(); v != nil {
			return v
		}
		return nil
	})
	k.mu.Unlock()
}

// atoms returns every live atom that has ever had this tag attached. The
// backing list is pruned of collected entries on every call, so the slice
// never grows unboundedly just from atoms falling out of use.
func (k *tagKey) atoms() []AnyAtom {
	k.mu.Lock()
	defer k.mu.Unlock()

	live := k.tracked[:0]
	var result []AnyAtom
	for _, resolve := range k.tracked {
		if a := resolve(); a != nil {
			result = append(result, a)
			live = append(live, resolve)
		}
	}
	k.tracked = live
	return result
}

// Tag is a typed, symbol-keyed ambient value descriptor. Tags are attached
// to atoms, flows, scopes, and execution contexts and are projected back out
// through Required/Optional/All against a merged tagView.
type Tag[T any] struct {
	key        *tagKey
	def        T
	hasDefault bool
	parse      func(T) (T, error)
}

// TagOption configures a Tag at construction.
type TagOption[T any] func(*Tag[T])

// WithTagDefault sets the tag's default, used when a lookup finds no value.
func WithTagDefault[T any](def T) TagOption[T] {
	return func(t *Tag[T]) {
		t.def = def
		t.hasDefault = true
	}
}

// WithTagParse attaches a validator/normalizer run whenever a Tagged value
// is constructed from this tag.
func WithTagParse[T any](parse func(T) (T, error)) TagOption[T] {
	return func(t *Tag[T]) {
		t.parse = parse
	}
}

// NewTag creates (or reuses, by label) a typed tag.
func NewTag[T any](label string, opts ...TagOption[T]) Tag[T] {
	t := Tag[T]{key: internTagKey(label)}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Label returns the tag's interned label.
func (t Tag[T]) Label() string { return t.key.label }

// Tagged is a validated value produced from a Tag.
type Tagged[T any] struct {
	tag   Tag[T]
	value T
}

func (tg Tagged[T]) attach(layer tagLayer) {
	layer[tg.tag.key] = tg.value
}

// New constructs a Tagged value, running the tag's parser if one is
// attached.
func (t Tag[T]) New(value T) (Tagged[T], error) {
	if t.parse != nil {
		v, err := t.parse(value)
		if err != nil {
			return Tagged[T]{}, &ParseError{Phase: ParsePhaseTag, Label: t.key.label, Cause: err}
		}
		value = v
	}
	return Tagged[T]{tag: t, value: value}, nil
}

// With is the panicking convenience form of New, for declaration sites
// (atom/flow/scope construction) where an invalid literal tag value is a
// programming error, not a runtime condition to recover from.
func (t Tag[T]) With(value T) Tagged[T] {
	tg, err := t.New(value)
	if err != nil {
		panic(err)
	}
	return tg
}

// Required projects the tag's value out of a view, falling back to the
// tag's default, and erroring only when neither is present.
func (t Tag[T]) Required(view *tagView) (T, error) {
	if raw, ok := view.get(t.key); ok {
		return raw.(T), nil
	}
	if t.hasDefault {
		return t.def, nil
	}
	var zero T
	return zero, &TagMissingError{Label: t.key.label}
}

// Optional projects the tag's value, also falling back to the default, and
// reports false only when neither is present.
func (t Tag[T]) Optional(view *tagView) (T, bool) {
	if raw, ok := view.get(t.key); ok {
		return raw.(T), true
	}
	if t.hasDefault {
		return t.def, true
	}
	var zero T
	return zero, false
}

// All collects every value attached under this tag across every layer of
// the view, in insertion order. The tag's default never contributes.
func (t Tag[T]) All(view *tagView) []T {
	raw := view.all(t.key)
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(T))
	}
	return out
}

// AtomsWithTag enumerates every atom, across every scope, that has ever had
// this tag attached and that is still reachable elsewhere in the program.
func (t Tag[T]) AtomsWithTag() []AnyAtom {
	return t.key.atoms()
}

// tagLayer is one source's contribution to a merged tagView: atom tags,
// flow tags, scope tags, parent-context tags, or exec-call tags.
type tagLayer map[*tagKey]any

// tagView is an ordered merge of tagLayers. Required/Optional resolve
// highest-priority-first (last layer wins); All collects in layer order
// (first layer first), matching spec.md's "insertion order across merged
// sources" rule for collect-mode projection.
type tagView struct {
	layers []tagLayer
}

func newTagView(layers ...tagLayer) *tagView {
	return &tagView{layers: layers}
}

func (v *tagView) get(k *tagKey) (any, bool) {
	for i := len(v.layers) - 1; i >= 0; i-- {
		if val, ok := v.layers[i][k]; ok {
			return val, true
		}
	}
	return nil, false
}

func (v *tagView) all(k *tagKey) []any {
	var out []any
	for _, layer := range v.layers {
		if val, ok := layer[k]; ok {
			out = append(out, val)
		}
	}
	return out
}

func newTagLayer(tagged ...anyTagged) tagLayer {
	layer := make(tagLayer, len(tagged))
	for _, tg := range tagged {
		tg.attach(layer)
	}
	return layer
}

// anyTagged is the type-erased form of Tagged[T], letting declaration sites
// accept a mixed slice of tags of different value types.
type anyTagged interface {
	attach(tagLayer)
}
