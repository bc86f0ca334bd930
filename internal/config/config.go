package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied. The message
// templates match the stock deployment; operators override them per brand.
func Defaults() Config {
	return Config{
		Company: "our company",
		Model: ModelConfig{
			Provider:  "bedrock",
			ID:        "anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens: 1024,
		},
		Guardrail: GuardrailConfig{
			Mode:     "rules",
			Version:  "DRAFT",
			BlockPII: true,
		},
		Messages: MessagesConfig{
			Greeting:          "Hello! Thank you for calling. How can I help you today?",
			GreetingReturning: "Welcome back! How can I help you today?",
			Fallback:          "I'm sorry, I can't help with that topic. Is there something else I can do for you?",
			Apology:           "I'm sorry, I didn't catch that. Could you say it again?",
			Error:             "I'm sorry, we're having technical trouble. Please call back in a few minutes.",
			Transfer:          "Let me connect you with a specialist who can help. One moment please.",
			Goodbye:           "Thank you for calling. Have a great day!",
			Reprompt:          "I didn't hear anything. Are you still there?",
			Limit:             "We've reached the time limit for this call. Please call back if there's anything else you need. Goodbye!",
		},
		Limits: LimitsConfig{
			MaxConversationTurns:   50,
			MaxCallDurationSeconds: 1800,
			SilenceTimeoutSeconds:  30,
			MaxInputChars:          2000,
			MaxSpokenChars:         800,
			MaxHistoryTurns:        20,
			MaxConsecutiveFailures: 2,
			TurnBudgetMillis:       7000,
			ModelBudgetPercent:     65,
		},
		Store: StoreConfig{
			Backend:          "memory",
			Table:            "voxloop-sessions",
			RetentionSeconds: 3600,
		},
		Gateway: GatewayConfig{
			Port: 18920,
			Bind: "loopback",
		},
		Metrics: MetricsConfig{
			Namespace: "Voxloop",
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}
