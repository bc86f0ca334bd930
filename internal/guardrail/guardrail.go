// Package guardrail applies safety policies to model input and output.
// Blocked content never reaches the model or the caller; the engine
// substitutes the configured fallback utterance instead.
package guardrail

import "context"

// Verdict is the outcome of a policy check.
type Verdict struct {
	Allowed  bool
	Category string // policy or topic that matched, empty when allowed
}

// Filter checks text against safety policy. CheckInput runs before the
// model call, CheckOutput after.
type Filter interface {
	CheckInput(ctx context.Context, text string) (Verdict, error)
	CheckOutput(ctx context.Context, text string) (Verdict, error)
}

// Chain runs filters in order and returns the first blocking verdict.
// A filter error does not block the chain; safety outages must not take
// down live calls, so errored filters are skipped.
type Chain struct {
	filters []Filter
}

// NewChain composes filters. Order matters: cheap local rules should come
// before remote policy services.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

func (c *Chain) CheckInput(ctx context.Context, text string) (Verdict, error) {
	for _, f := range c.filters {
		v, err := f.CheckInput(ctx, text)
		if err != nil {
			continue
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return Verdict{Allowed: true}, nil
}

func (c *Chain) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	for _, f := range c.filters {
		v, err := f.CheckOutput(ctx, text)
		if err != nil {
			continue
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return Verdict{Allowed: true}, nil
}

// Allow is a Filter that permits everything. Used when guardrails are
// disabled in config.
type Allow struct{}

func (Allow) CheckInput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}

func (Allow) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}
