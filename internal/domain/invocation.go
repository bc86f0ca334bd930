package domain

import "time"

// EventType classifies what the contact flow is asking for.
type EventType string

const (
	EventInit      EventType = "init"
	EventUserInput EventType = "user_input"
	EventEnd       EventType = "end"
)

// Invocation is one request from the telephony platform: a single turn of
// a single call.
type Invocation struct {
	SessionID    string    `json:"sessionId"`
	Transcript   string    `json:"transcript"`
	EventType    EventType `json:"eventType"`
	CallerNumber string    `json:"callerNumber,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`

	// Attributes carries the platform's contact attributes for this
	// invocation. They are merged into the session and surface in the
	// model's call context.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PlatformResponse is the exact contract the contact flow consumes.
// Action is always set; the platform must never receive an unset action.
type PlatformResponse struct {
	ResponseText string `json:"responseText"`
	Action       Action `json:"action"`
	SessionID    string `json:"sessionId"`
	TurnCount    int    `json:"turnCount"`
}
