package pumped

import (
	"sync/atomic"
	"testing"
)

func TestControllerGetBeforeResolveIsIdle(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)

	if _, err := ctrl.Get(); err != ErrControllerIdle {
		t.Errorf("expected ErrControllerIdle, got %v", err)
	}
}

func TestControllerInvalidateRerunsFactoryAndKeepsStaleValueVisible(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var n int32
	a := Provide(func(rc *ResolveCtx) (int, error) {
		return int(atomic.AddInt32(&n, 1)), nil
	})
	ctrl := ControllerFor(scope, a)

	v1, err := ctrl.Resolve()
	if err != nil || v1 != 1 {
		t.Fatalf("unexpected first resolve: %d, %v", v1, err)
	}

	var sawStaleDuringResolving bool
	unsub := ctrl.On(EventResolving, func() {
		if v, ok := ctrl.Peek(); ok && v == 1 {
			sawStaleDuringResolving = true
		}
	})
	defer unsub()

	if err := ctrl.Invalidate(); err != nil {
		t.Fatalf("unexpected invalidate error: %v", err)
	}
	if !sawStaleDuringResolving {
		t.Error("expected stale value to remain visible while resolving")
	}

	v2, err := ctrl.Get()
	if err != nil || v2 != 2 {
		t.Fatalf("expected re-resolved value 2, got %d, %v", v2, err)
	}
}

func TestControllerInvalidateOnIdleIsNoop(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)

	if err := ctrl.Invalidate(); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
	if _, err := ctrl.Get(); err != ErrControllerIdle {
		t.Errorf("expected still idle, got %v", err)
	}
}

func TestControllerSetFailsWhenIdle(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)

	if err := ctrl.Set(5); err != ErrControllerIdle {
		t.Errorf("expected ErrControllerIdle, got %v", err)
	}
}

func TestControllerSetInstallsValueWithoutRunningFactory(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var calls int32
	a := Provide(func(rc *ResolveCtx) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	})
	ctrl := ControllerFor(scope, a)

	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctrl.Set(100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := ctrl.Get()
	if err != nil || v != 100 {
		t.Fatalf("expected 100, got %d, %v", v, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected factory to still have run exactly once, ran %d times", calls)
	}
}

func TestControllerUpdateTransformsCurrentValue(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 10, nil })
	ctrl := ControllerFor(scope, a)

	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctrl.Update(func(v int) int { return v + 1 }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, err := ctrl.Get()
	if err != nil || v != 11 {
		t.Fatalf("expected 11, got %d, %v", v, err)
	}
}

func TestControllerListenerFiresExactlyOncePerTransition(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)

	var resolvedCount int32
	unsub := ctrl.On(EventResolved, func() { atomic.AddInt32(&resolvedCount, 1) })
	defer unsub()

	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&resolvedCount) != 1 {
		t.Errorf("expected listener to fire exactly once, fired %d times", resolvedCount)
	}
}

func TestControllerReleaseRevertsToIdle(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var cleaned bool
	a := Provide(func(rc *ResolveCtx) (int, error) {
		rc.OnCleanup(func() error { cleaned = true; return nil })
		return 1, nil
	})
	ctrl := ControllerFor(scope, a)

	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctrl.Release()

	if !cleaned {
		t.Error("expected cleanup to run on release")
	}
	if _, err := ctrl.Get(); err != ErrControllerIdle {
		t.Errorf("expected idle after release, got %v", err)
	}
}

func TestPresetValueShortCircuitsFactory(t *testing.T) {
	a := Provide(func(rc *ResolveCtx) (int, error) {
		t.Fatal("factory should not run when a value preset is active")
		return 0, nil
	})

	scope := CreateScope(WithPreset(PresetValue(a, 999)))
	defer scope.Dispose()

	v, err := Resolve(scope, a)
	if err != nil || v != 999 {
		t.Fatalf("expected preset value 999, got %d, %v", v, err)
	}
}

func TestPresetRedirect(t *testing.T) {
	real := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	fake := Provide(func(rc *ResolveCtx) (int, error) { return 2, nil })

	scope := CreateScope(WithPreset(PresetRedirect(real, fake)))
	defer scope.Dispose()

	v, err := Resolve(scope, real)
	if err != nil || v != 2 {
		t.Fatalf("expected redirected value 2, got %d, %v", v, err)
	}
}

func TestPresetRedirectToSelfPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic when redirecting an atom to itself")
		}
	}()
	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	PresetRedirect(a, a)
}
