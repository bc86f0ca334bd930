package connectevent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop/voxloop/internal/domain"
)

const sampleEvent = `{
  "Details": {
    "ContactData": {
      "ContactId": "contact-abc",
      "Channel": "VOICE",
      "Attributes": {"customer_tier": "gold"},
      "CustomerEndpoint": {"Address": "+15550100", "Type": "TELEPHONE_NUMBER"}
    },
    "Parameters": {
      "userInput": "What are your hours?",
      "eventType": "user_input"
    }
  },
  "Name": "ContactFlowEvent"
}`

func TestParseFullEvent(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(sampleEvent), &ev))

	inv := Parse(ev, "req-1")

	assert.Equal(t, "contact-abc", inv.SessionID)
	assert.Equal(t, "What are your hours?", inv.Transcript)
	assert.Equal(t, domain.EventUserInput, inv.EventType)
	assert.Equal(t, "+15550100", inv.CallerNumber)
	assert.Equal(t, "VOICE", inv.Channel)
	assert.Equal(t, "req-1", inv.RequestID)
	assert.Equal(t, map[string]string{"customer_tier": "gold"}, inv.Attributes)
}

func TestParseDefaults(t *testing.T) {
	inv := Parse(Event{}, "req-2")

	assert.NotEmpty(t, inv.SessionID, "a missing contact ID gets a generated session ID")
	assert.Equal(t, domain.EventUserInput, inv.EventType)
	assert.Equal(t, "VOICE", inv.Channel)
	assert.Empty(t, inv.Transcript)
}

func TestParseUnknownEventTypeFallsBack(t *testing.T) {
	inv := Parse(Event{Details: Details{Parameters: map[string]string{"eventType": "bogus"}}}, "")

	assert.Equal(t, domain.EventUserInput, inv.EventType)
}

func TestParseInitAndEnd(t *testing.T) {
	for _, et := range []string{"init", "end"} {
		inv := Parse(Event{Details: Details{Parameters: map[string]string{"eventType": et}}}, "")
		assert.Equal(t, domain.EventType(et), inv.EventType)
	}
}

func TestRenderFlatMap(t *testing.T) {
	out := Render(domain.PlatformResponse{
		ResponseText: "We're open 9 to 5.",
		Action:       domain.ActionContinue,
		SessionID:    "contact-abc",
		TurnCount:    4,
	})

	assert.Equal(t, map[string]string{
		"response":  "We're open 9 to 5.",
		"action":    "continue",
		"sessionId": "contact-abc",
		"turnCount": "4",
	}, out)
}
