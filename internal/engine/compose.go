package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/voxloop/voxloop/internal/domain"
)

// Composer shapes a completed turn into the response the telephony
// platform speaks and acts on.
type Composer struct {
	maxSpokenChars int
}

// NewComposer creates a composer. maxChars <= 0 disables the spoken
// length bound.
func NewComposer(maxChars int) *Composer {
	return &Composer{maxSpokenChars: maxChars}
}

// Compose renders the platform response for a turn. The action is never
// left unset; a turn without an explicit decision keeps the caller in
// conversation rather than disconnecting them.
func (c *Composer) Compose(sess *domain.CallSession, turn domain.Turn) domain.PlatformResponse {
	action := turn.Action
	if action == "" {
		action = domain.ActionContinue
	}
	return domain.PlatformResponse{
		ResponseText: c.bound(turn.AgentText),
		Action:       action,
		SessionID:    sess.SessionID,
		TurnCount:    sess.TurnCount,
	}
}

// bound trims text to the spoken length budget, preferring a sentence
// boundary, then a word boundary, before cutting mid-word.
func (c *Composer) bound(text string) string {
	if c.maxSpokenChars <= 0 || utf8.RuneCountInString(text) <= c.maxSpokenChars {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:c.maxSpokenChars])

	if i := lastSentenceEnd(cut); i > 0 {
		return strings.TrimSpace(cut[:i])
	}
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return strings.TrimSpace(cut[:i]) + "..."
	}
	return cut
}

// lastSentenceEnd returns the byte offset just past the final sentence
// terminator in s, or 0 when there is none.
func lastSentenceEnd(s string) int {
	end := 0
	for i, r := range s {
		switch r {
		case '.', '!', '?':
			end = i + 1
		}
	}
	return end
}
