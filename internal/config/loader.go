package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.AuthToken = expandEnvVars(cfg.Gateway.AuthToken)
	cfg.Guardrail.ID = expandEnvVars(cfg.Guardrail.ID)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields the YAML left unset. Message
// templates fall back to the stock wording so the caller never hears an
// empty utterance.
func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Company == "" {
		cfg.Company = d.Company
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = d.Model.Provider
	}
	if cfg.Model.ID == "" {
		cfg.Model.ID = d.Model.ID
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = d.Model.MaxTokens
	}
	if cfg.Guardrail.Mode == "" {
		cfg.Guardrail.Mode = d.Guardrail.Mode
	}
	if cfg.Guardrail.Version == "" {
		cfg.Guardrail.Version = d.Guardrail.Version
	}

	m := &cfg.Messages
	dm := d.Messages
	if m.Greeting == "" {
		m.Greeting = dm.Greeting
	}
	if m.GreetingReturning == "" {
		m.GreetingReturning = dm.GreetingReturning
	}
	if m.Fallback == "" {
		m.Fallback = dm.Fallback
	}
	if m.Apology == "" {
		m.Apology = dm.Apology
	}
	if m.Error == "" {
		m.Error = dm.Error
	}
	if m.Transfer == "" {
		m.Transfer = dm.Transfer
	}
	if m.Goodbye == "" {
		m.Goodbye = dm.Goodbye
	}
	if m.Reprompt == "" {
		m.Reprompt = dm.Reprompt
	}
	if m.Limit == "" {
		m.Limit = dm.Limit
	}

	l := &cfg.Limits
	dl := d.Limits
	if l.MaxConversationTurns == 0 {
		l.MaxConversationTurns = dl.MaxConversationTurns
	}
	if l.MaxCallDurationSeconds == 0 {
		l.MaxCallDurationSeconds = dl.MaxCallDurationSeconds
	}
	if l.SilenceTimeoutSeconds == 0 {
		l.SilenceTimeoutSeconds = dl.SilenceTimeoutSeconds
	}
	if l.MaxInputChars == 0 {
		l.MaxInputChars = dl.MaxInputChars
	}
	if l.MaxSpokenChars == 0 {
		l.MaxSpokenChars = dl.MaxSpokenChars
	}
	if l.MaxHistoryTurns == 0 {
		l.MaxHistoryTurns = dl.MaxHistoryTurns
	}
	if l.MaxConsecutiveFailures == 0 {
		l.MaxConsecutiveFailures = dl.MaxConsecutiveFailures
	}
	if l.TurnBudgetMillis == 0 {
		l.TurnBudgetMillis = dl.TurnBudgetMillis
	}
	if l.ModelBudgetPercent == 0 {
		l.ModelBudgetPercent = dl.ModelBudgetPercent
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = d.Store.Table
	}
	if cfg.Store.RetentionSeconds == 0 {
		cfg.Store.RetentionSeconds = d.Store.RetentionSeconds
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = d.Metrics.Namespace
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
}

// applyEnvOverrides reads VOXLOOP_* environment variables and overrides
// config values. These are the knobs the Lambda deployment sets.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXLOOP_COMPANY_NAME"); v != "" {
		cfg.Company = v
	}
	if v := os.Getenv("VOXLOOP_MODEL_ID"); v != "" {
		cfg.Model.ID = v
	}
	if v := os.Getenv("VOXLOOP_MODEL_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("VOXLOOP_MODEL_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxTokens = n
		}
	}
	if v := os.Getenv("VOXLOOP_MODEL_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Model.Temperature = &f
		}
	}
	if v := os.Getenv("VOXLOOP_GUARDRAIL_ID"); v != "" {
		cfg.Guardrail.ID = v
	}
	if v := os.Getenv("VOXLOOP_GUARDRAIL_VERSION"); v != "" {
		cfg.Guardrail.Version = v
	}
	if v := os.Getenv("VOXLOOP_GREETING_MESSAGE"); v != "" {
		cfg.Messages.Greeting = v
	}
	if v := os.Getenv("VOXLOOP_GOODBYE_MESSAGE"); v != "" {
		cfg.Messages.Goodbye = v
	}
	if v := os.Getenv("VOXLOOP_MAX_CONVERSATION_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxConversationTurns = n
		}
	}
	if v := os.Getenv("VOXLOOP_MAX_CALL_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxCallDurationSeconds = n
		}
	}
	if v := os.Getenv("VOXLOOP_SILENCE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.SilenceTimeoutSeconds = n
		}
	}
	if v := os.Getenv("VOXLOOP_TURN_BUDGET_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.TurnBudgetMillis = n
		}
	}
	if v := os.Getenv("VOXLOOP_SESSIONS_TABLE"); v != "" {
		cfg.Store.Backend = "dynamodb"
		cfg.Store.Table = v
	}
	if v := os.Getenv("VOXLOOP_KNOWLEDGE_BASE_ID"); v != "" {
		cfg.Tools.Enabled = true
		cfg.Tools.KnowledgeBaseID = v
	}
	if v := os.Getenv("VOXLOOP_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("VOXLOOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
