package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voxloop/voxloop/internal/llm"
)

// PromptConfig controls system prompt generation for a call.
type PromptConfig struct {
	Company      string
	CallerNumber string
	Channel      string
	Attributes   map[string]string // contact attributes and caller memory
	PriorTurns   int               // exchanges evicted from the bounded history
	Tools        []llm.ToolDefinition
	ExtraPrompt  string
	Now          time.Time
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	company := cfg.Company
	if company == "" {
		company = "the company"
	}
	fmt.Fprintf(&b, "You are a helpful voice assistant for %s. You are speaking with a customer over the phone.\n\n", company)

	b.WriteString("Your role:\n")
	b.WriteString("- Answer customer questions accurately and concisely\n")
	b.WriteString("- Be friendly, professional, and empathetic\n")
	b.WriteString("- Keep responses brief (2-3 sentences max) since this is voice\n")
	b.WriteString("- Ask clarifying questions when needed\n")
	b.WriteString("- Offer to transfer to a human agent for complex issues\n")
	b.WriteString("- Never make up information you don't know\n\n")

	b.WriteString("Guidelines:\n")
	b.WriteString("- Speak naturally as if in a phone conversation\n")
	b.WriteString("- Avoid technical jargon and never read out URLs, markup or lists\n")
	b.WriteString("- Acknowledge what the caller says before responding\n")
	b.WriteString("- If you don't understand, politely ask them to rephrase\n\n")

	// Call context
	fmt.Fprintf(&b, "Current time: %s\n", cfg.Now.Format("2006-01-02 15:04 MST"))
	if cfg.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", cfg.Channel)
	}
	if cfg.CallerNumber != "" {
		fmt.Fprintf(&b, "Caller: %s\n", cfg.CallerNumber)
	}
	if cfg.PriorTurns > 0 {
		fmt.Fprintf(&b, "Earlier in this call there were %d exchanges that are no longer shown.\n", cfg.PriorTurns)
	}
	if len(cfg.Attributes) > 0 {
		b.WriteString("What we know about this caller:\n")
		keys := make([]string, 0, len(cfg.Attributes))
		for k := range cfg.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, cfg.Attributes[k])
		}
	}
	b.WriteString("\n")

	if len(cfg.Tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("End every reply with an action marker on its own final line:\n")
	b.WriteString("[action: continue] to keep the conversation going,\n")
	b.WriteString("[action: transfer] to hand the caller to a human agent,\n")
	b.WriteString("[action: end] when the caller says goodbye or wants to hang up.\n")
	b.WriteString("The marker is stripped before speech synthesis; never reference it aloud.\n")

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
