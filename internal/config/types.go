package config

// Config is the root configuration for Voxloop. Everything a deployment
// tunes lives here; nothing caller-facing is hard-coded.
type Config struct {
	Company   string          `yaml:"company,omitempty"` // company name rendered into prompts
	Model     ModelConfig     `yaml:"model,omitempty"`
	Guardrail GuardrailConfig `yaml:"guardrail,omitempty"`
	Messages  MessagesConfig  `yaml:"messages,omitempty"`
	Limits    LimitsConfig    `yaml:"limits,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Tools     ToolsConfig     `yaml:"tools,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ModelConfig selects and tunes the language-model collaborator.
type ModelConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // "bedrock" | "mock"
	ID          string   `yaml:"id,omitempty"`       // model identifier, e.g. a Bedrock model ID
	Region      string   `yaml:"region,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	ExtraPrompt string   `yaml:"extraPrompt,omitempty"` // appended to the built system prompt
}

// GuardrailConfig tunes the safety filter chain.
type GuardrailConfig struct {
	Mode          string   `yaml:"mode,omitempty"` // "rules" | "bedrock" | "both" | "off"
	ID            string   `yaml:"id,omitempty"`   // Bedrock guardrail identifier
	Version       string   `yaml:"version,omitempty"`
	BlockedTopics []string `yaml:"blockedTopics,omitempty"` // regex patterns, case-insensitive
	BlockPII      bool     `yaml:"blockPii,omitempty"`
}

// MessagesConfig holds every fixed utterance the caller can hear.
type MessagesConfig struct {
	Greeting          string `yaml:"greeting,omitempty"`
	GreetingReturning string `yaml:"greetingReturning,omitempty"` // caller known from a previous call
	Fallback          string `yaml:"fallback,omitempty"` // substituted on guardrail block
	Apology           string `yaml:"apology,omitempty"`  // transient collaborator failure
	Error             string `yaml:"error,omitempty"`    // terminal failure, spoken before hangup
	Transfer          string `yaml:"transfer,omitempty"`
	Goodbye           string `yaml:"goodbye,omitempty"`
	Reprompt          string `yaml:"reprompt,omitempty"` // silence detected
	Limit             string `yaml:"limit,omitempty"`    // turn/duration ceiling reached
}

// LimitsConfig bounds the conversation and the per-invocation budget.
type LimitsConfig struct {
	MaxConversationTurns   int `yaml:"maxConversationTurns,omitempty"`
	MaxCallDurationSeconds int `yaml:"maxCallDurationSeconds,omitempty"`
	SilenceTimeoutSeconds  int `yaml:"silenceTimeoutSeconds,omitempty"`
	MaxInputChars          int `yaml:"maxInputChars,omitempty"`
	MaxSpokenChars         int `yaml:"maxSpokenChars,omitempty"`
	MaxHistoryTurns        int `yaml:"maxHistoryTurns,omitempty"`
	MaxConsecutiveFailures int `yaml:"maxConsecutiveFailures,omitempty"`

	// TurnBudgetMillis is the hard wall-clock budget for one invocation.
	// It must stay under the platform's invocation timeout (8s for the
	// deployed contact flow). ModelBudgetPercent caps how much of the
	// remaining budget a single model call may consume.
	TurnBudgetMillis   int `yaml:"turnBudgetMillis,omitempty"`
	ModelBudgetPercent int `yaml:"modelBudgetPercent,omitempty"`
}

// StoreConfig selects the session state store backend.
type StoreConfig struct {
	Backend          string `yaml:"backend,omitempty"` // "memory" | "sqlite" | "dynamodb"
	Path             string `yaml:"path,omitempty"`    // sqlite file, ":memory:" for tests
	Table            string `yaml:"table,omitempty"`   // DynamoDB table name
	RetentionSeconds int    `yaml:"retentionSeconds,omitempty"`
}

// ToolsConfig enables business tools exposed to the model.
type ToolsConfig struct {
	Enabled         bool   `yaml:"enabled,omitempty"`
	KnowledgeBaseID string `yaml:"knowledgeBaseId,omitempty"` // Bedrock knowledge base
}

// GatewayConfig controls the local invocation gateway.
type GatewayConfig struct {
	Port      int    `yaml:"port,omitempty"`
	Bind      string `yaml:"bind,omitempty"` // "loopback" | "lan"
	AuthToken string `yaml:"authToken,omitempty"`
}

// MetricsConfig controls latency/counter publication.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
