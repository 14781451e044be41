package pumped

import (
	"context"
	"testing"
)

func TestChildContextClosesAfterExecReturns(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	root := CreateContext(context.Background(), scope)

	tag := NewTag[int]("req-id")
	var captured *ExecutionContext
	_, err := ExecFn(root, ExecFnRequest[struct{}, int]{
		Fn: func(ec *ExecutionContext, _ struct{}) (int, error) {
			captured = ec
			SetTag(ec, tag, 7)
			return 1, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := captured.OnClose(func() {}); err == nil {
		t.Error("expected closed child context to reject new registrations")
	}
}

func TestSeekTagWalksParentChainWithoutDefault(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	tag := NewTag[string]("trace-id", WithTagDefault("fallback"))
	root := CreateContext(context.Background(), scope, WithContextTag(tag, "root-trace"))

	var seen string
	var ok bool
	_, err := ExecFn(root, ExecFnRequest[struct{}, int]{
		Fn: func(ec *ExecutionContext, _ struct{}) (int, error) {
			_, err := ExecFn(ec, ExecFnRequest[struct{}, int]{
				Fn: func(inner *ExecutionContext, _ struct{}) (int, error) {
					seen, ok = SeekTag(inner, tag)
					return 0, nil
				},
			})
			return 0, err
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || seen != "root-trace" {
		t.Errorf("expected to seek up to root-trace, got %q (ok=%v)", seen, ok)
	}
}

func TestSeekTagNeverFallsBackToTagDefault(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	tag := NewTag[string]("unset-trace", WithTagDefault("should-not-appear"))
	root := CreateContext(context.Background(), scope)

	_, ok := SeekTag(root, tag)
	if ok {
		t.Error("expected SeekTag to report absent rather than fall back to the tag default")
	}
}

func TestCloseRunsCallbacksLIFO(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	root := CreateContext(context.Background(), scope)
	var order []int
	root.OnClose(func() { order = append(order, 1) })
	root.OnClose(func() { order = append(order, 2) })
	root.OnClose(func() { order = append(order, 3) })

	root.Close()

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("expected LIFO order [3 2 1], got %v", order)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	root := CreateContext(context.Background(), scope)
	var calls int
	root.OnClose(func() { calls++ })

	root.Close()
	root.Close()

	if calls != 1 {
		t.Errorf("expected callback to run exactly once, ran %d times", calls)
	}
}

func TestExecFnIsolatesChildDataFromSiblings(t *testing.T) {
	scope := CreateScope()
	defer scope.Dispose()

	tag := NewTag[int]("local")
	root := CreateContext(context.Background(), scope)

	ExecFn(root, ExecFnRequest[struct{}, int]{
		Fn: func(ec *ExecutionContext, _ struct{}) (int, error) {
			SetTag(ec, tag, 1)
			return 0, nil
		},
	})

	var sawValue bool
	ExecFn(root, ExecFnRequest[struct{}, int]{
		Fn: func(ec *ExecutionContext, _ struct{}) (int, error) {
			_, sawValue = GetTag(ec, tag)
			return 0, nil
		},
	})

	if sawValue {
		t.Error("expected sibling exec to not observe the first exec's local tag")
	}
}
