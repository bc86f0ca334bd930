package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAction(t *testing.T) {
	cases := []struct {
		in         string
		wantText   string
		wantAction string
	}{
		{"We're open nine to five. [action: continue]", "We're open nine to five.", "continue"},
		{"Let me get a specialist. [action:transfer]", "Let me get a specialist.", "transfer"},
		{"Goodbye! [ACTION: END]", "Goodbye!", "end"},
		{"No marker here.", "No marker here.", ""},
		{"[action: continue]", "", "continue"},
		// Marker mid-text is not a decision, only a trailing marker counts.
		{"[action: end] but then more text", "[action: end] but then more text", ""},
	}

	for _, tc := range cases {
		text, action := extractAction(tc.in)
		assert.Equal(t, tc.wantText, text, "input %q", tc.in)
		assert.Equal(t, tc.wantAction, action, "input %q", tc.in)
	}
}

func TestProviderErrorFormat(t *testing.T) {
	err := &ProviderError{Provider: "bedrock", Message: "throttled", Code: 429}
	assert.Equal(t, "bedrock: 429 throttled", err.Error())

	err = &ProviderError{Provider: "bedrock", Message: "boom"}
	assert.Equal(t, "bedrock: boom", err.Error())
}

func TestConverseMessagesRoles(t *testing.T) {
	msgs := converseMessages([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})

	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}

func TestConverseToolsRejectsBadSchema(t *testing.T) {
	_, err := converseTools([]ToolDefinition{
		{Name: "bad", InputSchema: "{not json"},
	})
	assert.Error(t, err)
}
