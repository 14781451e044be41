package pumped

import "testing"

func TestSelectValueBeforeResolveIsAbsent(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)
	h := Select(ctrl, func(v int) int { return v * 10 }, func(a, b int) bool { return a == b })

	if _, ok := h.Value(); ok {
		t.Error("expected no value before the underlying atom resolves")
	}
}

func TestSelectSuppressesNotificationWhenProjectionUnchanged(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	type rec struct{ odd bool }
	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)
	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := Select(ctrl, func(v int) rec { return rec{odd: v%2 == 1} }, func(a, b rec) bool { return a == b })

	var notifications int
	unsub := h.Subscribe(func(rec) { notifications++ })
	defer unsub()

	// 1 -> 3: both odd, projection unchanged, no extra notification expected.
	if err := ctrl.Set(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifications != 0 {
		t.Errorf("expected 0 notifications for an unchanged projection, got %d", notifications)
	}

	// 3 -> 4: even, projection changes.
	if err := ctrl.Set(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifications != 1 {
		t.Errorf("expected 1 notification after the projection changed, got %d", notifications)
	}
}

func TestSelectUnsubscribeDetachesFromController(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)
	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := Select(ctrl, func(v int) int { return v }, func(a, b int) bool { return a == b })

	var notifications int
	unsub := h.Subscribe(func(int) { notifications++ })
	unsub()

	if err := ctrl.Set(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifications != 0 {
		t.Errorf("expected no notifications after unsubscribing, got %d", notifications)
	}
}

func TestSelectMultipleSubscribersAllFire(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	a := Provide(func(rc *ResolveCtx) (int, error) { return 1, nil })
	ctrl := ControllerFor(scope, a)
	if _, err := ctrl.Resolve(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := Select(ctrl, func(v int) int { return v }, func(a, b int) bool { return a == b })

	var countA, countB int
	unsubA := h.Subscribe(func(int) { countA++ })
	unsubB := h.Subscribe(func(int) { countB++ })
	defer unsubA()
	defer unsubB()

	if err := ctrl.Set(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if countA != 1 || countB != 1 {
		t.Errorf("expected both subscribers to fire once, got %d and %d", countA, countB)
	}
}
