// Package registry implements the Component Registry (spec.md §4.F): the
// end-to-end authority over live component instances. It resolves a
// registered class, authorizes mount/action/rehydrate against the Auth
// Gate, signs and validates state through the State Signature Engine,
// serializes per-instance action execution, and runs the periodic
// health supervision pass.
//
// Auto-discovery by walking a prototype chain (the source runtime's
// approach) is rejected per spec.md §9's redesign note: classes are
// registered explicitly, by name, at process startup — the same shape
// generated registration code or an explicit "registrable components"
// list would produce. Lookup still tries the spec's name variations
// (exact, capitalized, with/without a trailing "Component") so a
// mount request of "counter" or "CounterComponent" resolves the same
// definition as "Counter".
package registry
