package domain

import "time"

// SessionState is the lifecycle state of a call session.
type SessionState string

const (
	StateActive           SessionState = "active"
	StateAwaitingTransfer SessionState = "awaiting_transfer"
	StateEnded            SessionState = "ended"
	StateErrored          SessionState = "errored"
)

// Terminal reports whether the state admits no further turns.
func (s SessionState) Terminal() bool {
	return s == StateEnded || s == StateErrored
}

// Action tells the contact flow what to do after this turn.
type Action string

const (
	ActionContinue Action = "continue"
	ActionTransfer Action = "transfer"
	ActionEnd      Action = "end"
	ActionError    Action = "error"
)

// Verdict is the guardrail outcome for a turn.
type Verdict string

const (
	VerdictAllowed       Verdict = "allowed"
	VerdictBlockedInput  Verdict = "blocked_input"
	VerdictBlockedOutput Verdict = "blocked_output"
)

// Turn is one caller-utterance/agent-response exchange.
type Turn struct {
	Index      int           `json:"index"`
	CallerText string        `json:"callerText"`
	AgentText  string        `json:"agentText"`
	Action     Action        `json:"action"`
	Verdict    Verdict       `json:"verdict"`
	Timestamp  time.Time     `json:"timestamp"`
	Latency    time.Duration `json:"latency,omitempty"`

	// ModelLatency is the portion of Latency spent inside the language
	// model, zero for turns that never reached it.
	ModelLatency time.Duration `json:"modelLatency,omitempty"`
}

// CallSession is the full multi-turn state of one phone call.
// It is checked out of the session store at the start of an invocation,
// mutated by exactly one turn, and checked back in.
type CallSession struct {
	SessionID      string            `json:"sessionId"`
	CallerNumber   string            `json:"callerNumber,omitempty"`
	Channel        string            `json:"channel,omitempty"`
	State          SessionState      `json:"state"`
	TurnCount      int               `json:"turnCount"`
	StartedAt      time.Time         `json:"startedAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	History        []Turn            `json:"history,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`

	// Evicted counts history turns dropped to stay within the history budget.
	Evicted int `json:"evicted,omitempty"`

	// Failures counts consecutive collaborator failures. Reset on any
	// successful turn; when it reaches the configured ceiling the session
	// transitions to errored.
	Failures int `json:"failures,omitempty"`
}

// CallerProfile is what the platform remembers about a phone number
// across calls: how often they called, when, and any preferences picked
// up along the way.
type CallerProfile struct {
	CallerNumber string            `json:"callerNumber"`
	TotalCalls   int               `json:"totalCalls"`
	LastSeenAt   time.Time         `json:"lastSeenAt"`
	Preferences  map[string]string `json:"preferences,omitempty"`
}

// NewCallSession creates a fresh active session for a contact.
func NewCallSession(sessionID, callerNumber string, now time.Time) *CallSession {
	return &CallSession{
		SessionID:      sessionID,
		CallerNumber:   callerNumber,
		State:          StateActive,
		StartedAt:      now,
		LastActivityAt: now,
		Attributes:     make(map[string]string),
	}
}

// Elapsed returns how long the call has been running.
func (s *CallSession) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// SinceActivity returns the time since the last completed turn.
func (s *CallSession) SinceActivity(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// RecordTurn appends a completed turn, increments the turn counter and
// evicts the oldest history entries beyond maxHistory. maxHistory <= 0
// means unbounded.
func (s *CallSession) RecordTurn(t Turn, maxHistory int) {
	t.Index = s.TurnCount
	s.History = append(s.History, t)
	s.TurnCount++
	s.LastActivityAt = t.Timestamp

	if maxHistory > 0 && len(s.History) > maxHistory {
		drop := len(s.History) - maxHistory
		s.History = append(s.History[:0:0], s.History[drop:]...)
		s.Evicted += drop
	}
}

// Clone returns a deep copy of the session. Stores hand out clones so a
// caller mutating its checkout cannot corrupt shared state.
func (s *CallSession) Clone() *CallSession {
	c := *s
	c.History = append([]Turn(nil), s.History...)
	if s.Attributes != nil {
		c.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}
