package pumped

// Preset overrides an atom's resolution at scope construction time, either
// with a fixed value or by redirecting to another atom of the same type.
// Presets are attached via WithPreset and are immutable for the scope's
// lifetime — there is no way to change a preset after CreateScope returns.
type Preset struct {
	apply func(s *Scope)
}

type presetEntry struct {
	isValue         bool
	value           any
	resolveRedirect func(s *Scope, stack *resolutionStack) (any, error)
}

// PresetValue substitutes a fixed value for target, skipping its factory
// (and therefore its dependency resolution) entirely.
func PresetValue[T any](target *Atom[T], value T) Preset {
	return Preset{apply: func(s *Scope) {
		s.presets[any(target)] = presetEntry{isValue: true, value: value}
	}}
}

// PresetRedirect substitutes redirect's resolution for target: resolving
// target actually resolves redirect and caches its value under target's
// entry. redirect must not be target itself.
func PresetRedirect[T any](target, redirect *Atom[T]) Preset {
	if any(target) == any(redirect) {
		panic("preset: redirect cannot be the target atom itself")
	}
	return Preset{apply: func(s *Scope) {
		s.presets[any(target)] = presetEntry{
			isValue: false,
			resolveRedirect: func(sc *Scope, stack *resolutionStack) (any, error) {
				return resolveAtomWithStack(sc, redirect, stack)
			},
		}
	}}
}

// WithPreset attaches one or more presets to a scope being constructed.
func WithPreset(presets ...Preset) ScopeOption {
	return func(s *Scope) {
		for _, p := range presets {
			p.apply(s)
		}
	}
}

func (s *Scope) lookupPreset(key any) (presetEntry, bool) {
	p, ok := s.presets[key]
	return p, ok
}

func (s *Scope) resolvePreset(p presetEntry, stack *resolutionStack) (any, error) {
	if p.isValue {
		return p.value, nil
	}
	return p.resolveRedirect(s, stack)
}
