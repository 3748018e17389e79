/*
Package store implements the hierarchical, namespaced key/value scopes that extensions use
to share state while a run walks the execution tree.

Every node owns one Scope. Scopes live in an Arena and point to their parent by index, so a
read falls back through the ancestor chain while writes only ever touch the local scope:

	arena := store.NewArena()
	engine := arena.Root("engine")
	suite, _ := engine.Child("suite")

	ns := store.NewNamespace("db")
	_ = engine.Put(ns, "dsn", "postgres://...")
	dsn, _ := suite.Get(ns, "dsn") // found in the ancestor

Values may carry a Closer. Closing a scope runs its closers exactly once, in reverse
registration order, and reports every failure in a single domain.ResourceCloseError.
GetOrCompute is single-flight: concurrent callers for the same absent key share one
computation.
*/
package store
