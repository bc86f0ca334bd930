// Package normalize validates and cleans the transcribed turn input before
// it reaches the conversation engine.
package normalize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies the normalized input.
type Kind string

const (
	// KindSpeech is a usable caller utterance.
	KindSpeech Kind = "speech"
	// KindSilence means no speech was detected for the turn.
	KindSilence Kind = "silence"
	// KindGarbled means the transcript contained no usable characters.
	KindGarbled Kind = "garbled"
)

// Input is a validated, cleaned caller utterance.
type Input struct {
	Text      string
	Kind      Kind
	Truncated bool
}

// ValidationError reports malformed invocation metadata. It is recovered
// by the orchestrator, never propagated to the platform.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Normalizer cleans and bounds turn input.
type Normalizer struct {
	maxChars int
}

// New creates a Normalizer enforcing the given input character ceiling.
// maxChars <= 0 disables truncation.
func New(maxChars int) *Normalizer {
	return &Normalizer{maxChars: maxChars}
}

// Meta is the per-invocation metadata the normalizer validates.
type Meta struct {
	SessionID string
}

// Normalize validates metadata and cleans the raw transcript. Control
// characters are stripped, whitespace collapsed, and input beyond the
// character ceiling truncated at a rune boundary to bound prompt size.
func (n *Normalizer) Normalize(raw string, meta Meta) (Input, error) {
	if strings.TrimSpace(meta.SessionID) == "" {
		return Input{}, &ValidationError{Field: "sessionId", Message: "must not be empty"}
	}

	cleaned := clean(raw)

	if cleaned == "" {
		if strings.TrimSpace(raw) == "" {
			return Input{Kind: KindSilence}, nil
		}
		// Input had content but nothing survived cleaning.
		return Input{Kind: KindGarbled}, nil
	}

	truncated := false
	if n.maxChars > 0 && utf8.RuneCountInString(cleaned) > n.maxChars {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:n.maxChars]))
		truncated = true
	}

	return Input{Text: cleaned, Kind: KindSpeech, Truncated: truncated}, nil
}

// clean strips control characters and collapses runs of whitespace.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsControl(r) && r != '\n' && r != '\t':
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsGraphic(r):
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
