package guardrail

import (
	"context"
	"fmt"
	"regexp"
)

// piiPatterns match identifiers that must never be echoed into prompts or
// synthesized to speech.
var piiPatterns = []struct {
	category string
	re       *regexp.Regexp
}{
	{"pii.ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"pii.card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{"pii.email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
}

// RuleFilter is a synchronous, in-process filter built from configured
// deny-topic patterns plus fixed PII patterns. It does no I/O and always
// produces a verdict.
type RuleFilter struct {
	topics   []topicRule
	blockPII bool
}

type topicRule struct {
	pattern string
	re      *regexp.Regexp
}

// NewRuleFilter compiles the given topic patterns (case-insensitive).
// An invalid pattern is an error; config validation should have caught it.
func NewRuleFilter(blockedTopics []string, blockPII bool) (*RuleFilter, error) {
	f := &RuleFilter{blockPII: blockPII}
	for _, p := range blockedTopics {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling blocked topic %q: %w", p, err)
		}
		f.topics = append(f.topics, topicRule{pattern: p, re: re})
	}
	return f, nil
}

func (f *RuleFilter) check(text string) Verdict {
	for _, t := range f.topics {
		if t.re.MatchString(text) {
			return Verdict{Allowed: false, Category: "topic:" + t.pattern}
		}
	}
	if f.blockPII {
		for _, p := range piiPatterns {
			if p.re.MatchString(text) {
				return Verdict{Allowed: false, Category: p.category}
			}
		}
	}
	return Verdict{Allowed: true}
}

func (f *RuleFilter) CheckInput(ctx context.Context, text string) (Verdict, error) {
	return f.check(text), nil
}

func (f *RuleFilter) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	return f.check(text), nil
}
