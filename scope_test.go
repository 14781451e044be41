package pumped

import "testing"

func TestSelfInvalidationDuringResolveIsDeferredThenReplayed(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var calls int
	var ctrlRef *Controller[int]
	a := Provide(func(rc *ResolveCtx) (int, error) {
		calls++
		if calls == 1 {
			// Invalidating itself mid-resolution must not deadlock; it
			// should be deferred and replayed once this call settles.
			ctrlRef.Invalidate()
		}
		return calls, nil
	})
	ctrlRef = ControllerFor(scope, a)

	v, err := ctrlRef.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = v

	// allow the deferred reinvocation to settle: since Invalidate during
	// stateResolving just flags pendingInvalidate and settleAndClose replays
	// it synchronously, by the time Resolve above returns the replay has
	// already happened.
	final, err := ctrlRef.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != 2 {
		t.Errorf("expected the deferred self-invalidation to have re-run the factory once, got %d", final)
	}
}

func TestInvalidateRunsExactlyOnceForOneCall(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var calls int
	a := Provide(func(rc *ResolveCtx) (int, error) {
		calls++
		return calls, nil
	})
	ctrl := ControllerFor(scope, a)
	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ctrl.Invalidate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := ctrl.Get()
	if err != nil || v != 2 {
		t.Fatalf("expected value 2 after one invalidate, got %d, %v", v, err)
	}

	// A listener that invalidates the atom again in reaction to its own
	// resolution is a self-loop, not a fresh duplicate request, and must be
	// reported rather than silently re-run forever.
	unsub := ctrl.On(EventResolved, func() { ctrl.Invalidate() })
	defer unsub()

	err = ctrl.Invalidate()
	if _, ok := err.(*InvalidationLoopError); !ok {
		t.Fatalf("expected *InvalidationLoopError, got %T: %v", err, err)
	}
}

func TestInvalidationLoopIsDetected(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	var aCtrl, bCtrl *Controller[int]
	a := Provide(func(rc *ResolveCtx) (int, error) {
		return 1, nil
	})
	b := Provide(func(rc *ResolveCtx) (int, error) {
		return 2, nil
	})
	aCtrl = ControllerFor(scope, a)
	bCtrl = ControllerFor(scope, b)

	if _, err := aCtrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bCtrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unsubA := aCtrl.On(EventResolved, func() { bCtrl.Invalidate() })
	unsubB := bCtrl.On(EventResolved, func() { aCtrl.Invalidate() })
	defer unsubA()
	defer unsubB()

	err := aCtrl.Invalidate()
	if err == nil {
		t.Fatal("expected an invalidation loop error")
	}
	loopErr, ok := err.(*InvalidationLoopError)
	if !ok {
		t.Fatalf("expected *InvalidationLoopError, got %T: %v", err, err)
	}
	if len(loopErr.Chain) < 3 {
		t.Errorf("expected the reported chain to include the full path that looped, got %v", loopErr.Chain)
	}
}
