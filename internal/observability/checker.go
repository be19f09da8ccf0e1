package observability

import "context"

// Checker is a dependency verified by the readiness probe.
// Implementations must be safe for concurrent use and respect ctx deadlines.
type Checker interface {
	// Name identifies the component in probe output and the dependency_up metric (e.g. "postgres").
	Name() string
	// Check returns nil when the dependency is usable.
	Check(ctx context.Context) error
}

// CheckFunc adapts a function into a named Checker.
func CheckFunc(name string, fn func(ctx context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func (c funcChecker) Name() string                    { return c.name }
func (c funcChecker) Check(ctx context.Context) error { return c.fn(ctx) }
