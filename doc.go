// Package pumped provides a generics-based dependency injection and
// structured-execution framework for Go.
//
// # Overview
//
// Pumped organizes code around two kinds of declaration:
//
//  1. Atoms: long-lived, scope-cached values resolved lazily and shared for
//     the lifetime of a Scope
//  2. Flows: short-lived, input-driven operations run fresh on every call,
//     through a hierarchical ExecutionContext tree
//
// # Basic Usage
//
// Declare atoms to build your application's dependency graph:
//
//	scope := pumped.CreateScope()
//	defer scope.Dispose()
//
//	config := pumped.Provide(func(rc *pumped.ResolveCtx) (*Config, error) {
//	    return &Config{Port: 8080}, nil
//	})
//
//	server := pumped.Derive1(
//	    pumped.Value(config),
//	    func(rc *pumped.ResolveCtx, cfg *Config) (*Server, error) {
//	        return NewServer(cfg.Port), nil
//	    },
//	)
//
//	srv, err := pumped.Resolve(scope, server)
//
// # Dependency Kinds
//
// Derive1..Derive5 accept any mix of dependency constructors, positionally:
//
//	// Value: the factory receives the dependency's resolved value directly.
//	pumped.Derive1(pumped.Value(config), ...)
//
//	// Ref: the factory receives a *Controller, deciding itself whether and
//	// when to resolve it. Resolved() makes Ref resolve eagerly beforehand.
//	pumped.Derive1(pumped.Ref(config), ...)
//	pumped.Derive1(pumped.Ref(config, pumped.Resolved()), ...)
//
//	// Required/OptionalTag/All project a tag's value instead of an atom's.
//	pumped.Derive1(pumped.Required(someTag), ...)
//	pumped.Derive1(pumped.OptionalTag(someTag), ...) // factory sees Optional[T]
//	pumped.Derive1(pumped.All(someTag), ...)         // factory sees []T
//
// # Controllers
//
// A Controller is a reactive back-reference to one atom's entry in one
// scope; it never owns the entry, so Release/Dispose is immediately visible
// to every outstanding Controller over that atom:
//
//	ctrl := pumped.ControllerFor(scope, server)
//
//	val, err := ctrl.Get()       // cached value, or ErrControllerIdle
//	val, ok := ctrl.Peek()       // like Get, but never errors, just absent
//	val, err = ctrl.Resolve()    // resolves if idle/failed
//	err = ctrl.Invalidate()      // re-runs factory; stale value visible meanwhile
//	err = ctrl.Set(newVal)       // installs a value, bypassing the factory
//	err = ctrl.Update(fn)        // transforms the current value in place
//	ctrl.Release()               // runs cleanups, reverts to idle
//	unsub := ctrl.On(pumped.EventResolved, func() { ... })
//
// # Flows and Execution Contexts
//
// Flows represent short-span, input-driven operations. Each Exec call runs
// the factory fresh, against a new child ExecutionContext that auto-closes
// when the call returns:
//
//	fetchUser := pumped.NewFlow1(
//	    pumped.Value(db),
//	    func(ec *pumped.ExecutionContext, rc *pumped.ResolveCtx, userID string, db *DB) (*User, error) {
//	        return db.Query(ec.Context(), userID)
//	    },
//	)
//
//	root := pumped.CreateContext(context.Background(), scope)
//	user, err := pumped.Exec(root, pumped.ExecRequest[string, *User]{
//	    Flow: fetchUser, Input: "user-123", HasInput: true,
//	})
//
// A flow with WithFlowInputParse attached can instead be driven from an
// untyped RawInput (e.g. a request body); supplying both Input and RawInput
// on one request is ErrAmbiguousInput.
//
// Sub-execs build a hierarchical context tree; SeekTag walks from a child up
// through its ancestors without ever falling back to a tag's own default:
//
//	parentFlow := pumped.NewFlow0(func(ec *pumped.ExecutionContext, rc *pumped.ResolveCtx, in string) (string, error) {
//	    orders, err := pumped.Exec(ec, pumped.ExecRequest[string, []Order]{Flow: fetchOrders, Input: in, HasInput: true})
//	    ...
//	})
//
// # Tags
//
// Tags are process-stable, symbol-like keys interned by label, attached to
// atoms, flows, scopes, and execution contexts and projected back out
// through a merged tagView (later-registered/more-specific layer wins for a
// single value; insertion order for All):
//
//	versionTag := pumped.NewTag[string]("version")
//
//	a := pumped.Provide(factory, pumped.WithAtomTag(versionTag, "1.0.0"))
//	s := pumped.CreateScope(pumped.WithScopeTag(versionTag, "1.0.0"))
//
// # Extensions
//
// Extensions hook atom factory runs and flow Execs through a single Wrap
// method, composed lowest-Order()-outermost (first-registered-outermost among
// equal Order()); Controller.Set/Update do not pass through Wrap:
//
//	type LoggingExtension struct{ pumped.BaseExtension }
//
//	func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *pumped.Operation) (any, error) {
//	    result, err := next()
//	    return result, err
//	}
//
//	scope := pumped.CreateScope(pumped.WithExtension(&LoggingExtension{
//	    BaseExtension: pumped.NewBaseExtension("logging"),
//	}))
//
// The extensions subpackage provides a slog-based LoggingExtension and a
// GraphDebugExtension that renders a failing atom's dependency subtree as an
// ASCII tree on OnError.
//
// # Resource Cleanup
//
// Register a cleanup from inside an atom's factory; it runs, LIFO with every
// other cleanup the same entry registered, on invalidate, release, or scope
// Dispose, and any failure is offered to each extension's OnCleanupError in
// turn until one reports it handled:
//
//	db := pumped.Provide(func(rc *pumped.ResolveCtx) (*DB, error) {
//	    database := OpenDB()
//	    rc.OnCleanup(func() error { return database.Close() })
//	    return database, nil
//	})
//
// # Presets
//
// Replace an atom's value, or redirect it to another atom, for the lifetime
// of a scope — typically for tests:
//
//	testScope := pumped.CreateScope(pumped.WithPreset(
//	    pumped.PresetValue(realDB, mockDBInstance),
//	))
//
//	testScope := pumped.CreateScope(pumped.WithPreset(
//	    pumped.PresetRedirect(realDB, mockDBAtom),
//	))
//
// # Thread Safety
//
// Every exported operation is safe for concurrent use: scopes, controllers,
// execution contexts, and select handles may all be driven from multiple
// goroutines. Concurrent resolves of the same atom share one factory run.
package pumped
