package config

import (
	"fmt"
	"regexp"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	validProviders := []string{"bedrock", "mock"}
	if cfg.Model.Provider != "" && !slices.Contains(validProviders, cfg.Model.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "model.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.Model.Provider),
		})
	}
	if cfg.Model.Provider == "bedrock" && cfg.Model.ID == "" {
		issues = append(issues, ValidationIssue{
			Path:    "model.id",
			Message: "required when model.provider is bedrock",
		})
	}
	if cfg.Model.MaxTokens < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "model.maxTokens",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Model.MaxTokens),
		})
	}
	if cfg.Model.Temperature != nil && (*cfg.Model.Temperature < 0 || *cfg.Model.Temperature > 1) {
		issues = append(issues, ValidationIssue{
			Path:    "model.temperature",
			Message: fmt.Sprintf("must be 0.0-1.0, got %g", *cfg.Model.Temperature),
		})
	}

	validGuardrailModes := []string{"rules", "bedrock", "both", "off"}
	if cfg.Guardrail.Mode != "" && !slices.Contains(validGuardrailModes, cfg.Guardrail.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "guardrail.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validGuardrailModes, cfg.Guardrail.Mode),
		})
	}
	if (cfg.Guardrail.Mode == "bedrock" || cfg.Guardrail.Mode == "both") && cfg.Guardrail.ID == "" {
		issues = append(issues, ValidationIssue{
			Path:    "guardrail.id",
			Message: fmt.Sprintf("required when guardrail.mode is %q", cfg.Guardrail.Mode),
		})
	}
	for i, pat := range cfg.Guardrail.BlockedTopics {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("guardrail.blockedTopics[%d]", i),
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}

	if cfg.Limits.MaxConversationTurns < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "limits.maxConversationTurns",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.Limits.MaxConversationTurns),
		})
	}
	if cfg.Limits.MaxCallDurationSeconds < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "limits.maxCallDurationSeconds",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.Limits.MaxCallDurationSeconds),
		})
	}
	if cfg.Limits.TurnBudgetMillis < 500 || cfg.Limits.TurnBudgetMillis > 8000 {
		issues = append(issues, ValidationIssue{
			Path:    "limits.turnBudgetMillis",
			Message: fmt.Sprintf("must be 500-8000 to stay under the platform invocation timeout, got %d", cfg.Limits.TurnBudgetMillis),
		})
	}
	if cfg.Limits.ModelBudgetPercent < 1 || cfg.Limits.ModelBudgetPercent > 90 {
		issues = append(issues, ValidationIssue{
			Path:    "limits.modelBudgetPercent",
			Message: fmt.Sprintf("must be 1-90 so the fallback path can still respond, got %d", cfg.Limits.ModelBudgetPercent),
		})
	}

	validBackends := []string{"memory", "sqlite", "dynamodb"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		issues = append(issues, ValidationIssue{
			Path:    "store.path",
			Message: "required when store.backend is sqlite",
		})
	}
	if cfg.Store.Backend == "dynamodb" && cfg.Store.Table == "" {
		issues = append(issues, ValidationIssue{
			Path:    "store.table",
			Message: "required when store.backend is dynamodb",
		})
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	validBinds := []string{"loopback", "lan"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}
