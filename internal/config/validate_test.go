package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findIssue(issues []ValidationIssue, path string) *ValidationIssue {
	for i := range issues {
		if issues[i].Path == path {
			return &issues[i]
		}
	}
	return nil
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidateModelProvider(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Provider = "openai"

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "model.provider"))
}

func TestValidateBedrockRequiresModelID(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Provider = "bedrock"
	cfg.Model.ID = ""

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "model.id"))
}

func TestValidateTemperatureRange(t *testing.T) {
	cfg := Defaults()
	bad := 1.5
	cfg.Model.Temperature = &bad

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "model.temperature"))
}

func TestValidateGuardrailMode(t *testing.T) {
	cfg := Defaults()
	cfg.Guardrail.Mode = "strict"
	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "guardrail.mode"))

	cfg = Defaults()
	cfg.Guardrail.Mode = "bedrock"
	cfg.Guardrail.ID = ""
	issues = Validate(&cfg)
	require.NotNil(t, findIssue(issues, "guardrail.id"))
}

func TestValidateBlockedTopicPatterns(t *testing.T) {
	cfg := Defaults()
	cfg.Guardrail.BlockedTopics = []string{"valid.*pattern", "[unclosed"}

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "guardrail.blockedTopics[1]"))
	assert.Nil(t, findIssue(issues, "guardrail.blockedTopics[0]"))
}

func TestValidateTurnBudgetBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Limits.TurnBudgetMillis = 12000

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "limits.turnBudgetMillis"))
}

func TestValidateStoreBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "redis"
	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "store.backend"))

	cfg = Defaults()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = ""
	issues = Validate(&cfg)
	require.NotNil(t, findIssue(issues, "store.path"))

	cfg = Defaults()
	cfg.Store.Backend = "dynamodb"
	cfg.Store.Table = ""
	issues = Validate(&cfg)
	require.NotNil(t, findIssue(issues, "store.table"))
}

func TestValidateLoggingStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Style = "xml"

	issues := Validate(&cfg)
	require.NotNil(t, findIssue(issues, "logging.style"))
}
