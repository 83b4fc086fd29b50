// Package hooks provides one generic before/after/on-failure lifecycle
// combinator shared by the facilitator (verify/settle) and the client
// (payment creation), replacing a hand-copied run-the-hooks loop per
// operation. The resource server's verify/settle do not use it; they run
// their own inline hook loops.
package hooks

// Set bundles the three lifecycle hook stages for one operation on context
// Ctx producing a Result.
//
// Before hooks run first, in order; the first one to return a non-nil error
// aborts the operation with that error (callers construct their own
// domain-shaped abort error, e.g. x402.NewVerifyError, before returning it).
//
// OnFailure hooks run only if core() fails, in order; the first one to
// report recovered=true supplies the Result returned in place of the error.
//
// After hooks run only on success, in order, for side effects (logging,
// metrics); their return value is ignored by Run.
type Set[Ctx any, Result any] struct {
	Before    []func(Ctx) error
	After     []func(Ctx, Result)
	OnFailure []func(Ctx, error) (Result, bool)
}

// Run executes before hooks, core, then after/on-failure hooks around core's
// outcome.
func Run[Ctx any, Result any](ctx Ctx, hooks Set[Ctx, Result], core func() (Result, error)) (Result, error) {
	var zero Result

	for _, before := range hooks.Before {
		if err := before(ctx); err != nil {
			return zero, err
		}
	}

	result, err := core()
	if err != nil {
		for _, onFailure := range hooks.OnFailure {
			if recovered, ok := onFailure(ctx, err); ok {
				return recovered, nil
			}
		}
		return zero, err
	}

	for _, after := range hooks.After {
		after(ctx, result)
	}
	return result, nil
}
