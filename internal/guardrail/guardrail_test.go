package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFilterBlockedTopic(t *testing.T) {
	f, err := NewRuleFilter([]string{`medical (diagnosis|advice)`, `legal advice`}, false)
	require.NoError(t, err)

	v, err := f.CheckInput(context.Background(), "Can you give me a medical diagnosis for my rash?")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Category, "topic:")

	v, err = f.CheckInput(context.Background(), "What are your opening hours?")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestRuleFilterCaseInsensitive(t *testing.T) {
	f, err := NewRuleFilter([]string{"password"}, false)
	require.NoError(t, err)

	v, _ := f.CheckInput(context.Background(), "What is my PASSWORD?")
	assert.False(t, v.Allowed)
}

func TestRuleFilterPII(t *testing.T) {
	f, err := NewRuleFilter(nil, true)
	require.NoError(t, err)

	cases := map[string]string{
		"my social is 123-45-6789":          "pii.ssn",
		"card number 4111 1111 1111 1111":   "pii.card",
		"email me at someone@example.com":   "pii.email",
	}
	for text, category := range cases {
		v, err := f.CheckOutput(context.Background(), text)
		require.NoError(t, err)
		assert.False(t, v.Allowed, text)
		assert.Equal(t, category, v.Category, text)
	}

	v, _ := f.CheckOutput(context.Background(), "we close at five")
	assert.True(t, v.Allowed)
}

func TestRuleFilterPIIDisabled(t *testing.T) {
	f, err := NewRuleFilter(nil, false)
	require.NoError(t, err)

	v, _ := f.CheckInput(context.Background(), "my social is 123-45-6789")
	assert.True(t, v.Allowed)
}

func TestNewRuleFilterBadPattern(t *testing.T) {
	_, err := NewRuleFilter([]string{"[unclosed"}, false)
	require.Error(t, err)
}

// blockAll is a filter stub that always blocks.
type blockAll struct{ category string }

func (b blockAll) CheckInput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{Allowed: false, Category: b.category}, nil
}

func (b blockAll) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{Allowed: false, Category: b.category}, nil
}

// failing is a filter stub that errors on every check.
type failing struct{}

func (failing) CheckInput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{}, errors.New("service unreachable")
}

func (failing) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	return Verdict{}, errors.New("service unreachable")
}

func TestChainFirstBlockWins(t *testing.T) {
	c := NewChain(Allow{}, blockAll{category: "first"}, blockAll{category: "second"})

	v, err := c.CheckInput(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "first", v.Category)
}

func TestChainSkipsErroredFilters(t *testing.T) {
	c := NewChain(failing{}, blockAll{category: "rules"})

	v, err := c.CheckOutput(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "rules", v.Category)
}

func TestChainAllAllowed(t *testing.T) {
	c := NewChain(Allow{}, Allow{})

	v, err := c.CheckInput(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Category)
}
