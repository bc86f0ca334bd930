// Package connectevent adapts Amazon Connect contact-flow events to and
// from the orchestrator's invocation contract. Connect invokes the
// function with a Details envelope and expects a flat string map back.
package connectevent

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/voxloop/voxloop/internal/domain"
)

// Event is the contact-flow invocation payload.
type Event struct {
	Details Details `json:"Details"`
	Name    string  `json:"Name,omitempty"`
}

// Details carries the contact metadata and the flow's Lambda parameters.
type Details struct {
	ContactData ContactData       `json:"ContactData"`
	Parameters  map[string]string `json:"Parameters"`
}

// ContactData identifies the call.
type ContactData struct {
	ContactID        string            `json:"ContactId"`
	Channel          string            `json:"Channel"`
	Attributes       map[string]string `json:"Attributes"`
	CustomerEndpoint Endpoint          `json:"CustomerEndpoint"`
}

// Endpoint is the caller's address, a phone number for voice contacts.
type Endpoint struct {
	Address string `json:"Address"`
	Type    string `json:"Type,omitempty"`
}

// Parse converts a Connect event into an invocation. Missing fields get
// the defaults the contact flow relies on: a generated session ID, the
// VOICE channel and the user_input event type.
func Parse(ev Event, requestID string) domain.Invocation {
	sessionID := ev.Details.ContactData.ContactID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	channel := ev.Details.ContactData.Channel
	if channel == "" {
		channel = "VOICE"
	}

	eventType := domain.EventType(ev.Details.Parameters["eventType"])
	switch eventType {
	case domain.EventInit, domain.EventUserInput, domain.EventEnd:
	default:
		eventType = domain.EventUserInput
	}

	return domain.Invocation{
		SessionID:    sessionID,
		Transcript:   ev.Details.Parameters["userInput"],
		EventType:    eventType,
		CallerNumber: ev.Details.ContactData.CustomerEndpoint.Address,
		Channel:      channel,
		RequestID:    requestID,
		Timestamp:    time.Now(),
		Attributes:   ev.Details.ContactData.Attributes,
	}
}

// Render flattens a platform response into the string map a contact flow
// reads back as external attributes.
func Render(resp domain.PlatformResponse) map[string]string {
	return map[string]string{
		"response":  resp.ResponseText,
		"action":    string(resp.Action),
		"sessionId": resp.SessionID,
		"turnCount": strconv.Itoa(resp.TurnCount),
	}
}
