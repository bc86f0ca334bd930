package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/engine"
	"github.com/voxloop/voxloop/internal/guardrail"
	"github.com/voxloop/voxloop/internal/llm"
	"github.com/voxloop/voxloop/internal/metrics"
	"github.com/voxloop/voxloop/internal/orchestrator"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/tools"
)

// loadConfig reads and validates the config file.
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "voxloop.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// needsAWS reports whether any configured component talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.Model.Provider == "bedrock" ||
		cfg.Guardrail.Mode == "bedrock" || cfg.Guardrail.Mode == "both" ||
		cfg.Store.Backend == "dynamodb" ||
		(cfg.Tools.Enabled && cfg.Tools.KnowledgeBaseID != "")
}

// buildOrchestrator wires a full turn pipeline from config. The returned
// cleanup closes whatever the wiring opened.
func buildOrchestrator(ctx context.Context, cfg *config.Config, sink orchestrator.EventSink) (*orchestrator.Orchestrator, func(), error) {
	var awsCfg aws.Config
	if needsAWS(cfg) {
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Model.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		awsCfg = c
	}

	store, dir, cleanup, err := buildStore(cfg, awsCfg)
	if err != nil {
		return nil, nil, err
	}

	model := buildModel(cfg, awsCfg)

	filter, err := buildFilter(cfg, awsCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	registry := tools.NewRegistry()
	if cfg.Tools.Enabled {
		registry.Register(tools.TransferTool{})
		registry.Register(tools.AccountLookupTool{})
		registry.Register(tools.ScheduleTool{})
		if cfg.Tools.KnowledgeBaseID != "" {
			kb := bedrockagentruntime.NewFromConfig(awsCfg)
			registry.Register(tools.NewKnowledgeTool(kb, cfg.Tools.KnowledgeBaseID))
		}
	}

	eng := engine.New(model, filter, registry, cfg, log)
	orch := orchestrator.New(store, dir, eng, cfg, metrics.Nop{}, sink, log)
	return orch, cleanup, nil
}

// buildStore creates the configured session store wrapped in degraded-mode
// resilience, plus the caller directory backed by the same storage.
func buildStore(cfg *config.Config, awsCfg aws.Config) (session.Store, session.Directory, func(), error) {
	retention := time.Duration(cfg.Store.RetentionSeconds) * time.Second

	switch cfg.Store.Backend {
	case "sqlite":
		db, err := session.OpenSQLite(cfg.Store.Path, retention, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening session database: %w", err)
		}
		log.Info().Str("path", cfg.Store.Path).Msg("using SQLite session store")
		return session.NewResilient(db, metrics.Nop{}, log), db, func() { db.Close() }, nil
	case "dynamodb":
		ddb := dynamodb.NewFromConfig(awsCfg)
		store := session.NewDynamoStore(ddb, cfg.Store.Table, retention, log)
		log.Info().Str("table", cfg.Store.Table).Msg("using DynamoDB session store")
		return session.NewResilient(store, metrics.Nop{}, log), store, func() {}, nil
	default:
		log.Info().Msg("using in-memory session store")
		store := session.NewMemoryStore()
		return store, store, func() {}, nil
	}
}

// buildModel creates the configured language model client.
func buildModel(cfg *config.Config, awsCfg aws.Config) llm.Client {
	if cfg.Model.Provider == "bedrock" {
		br := bedrockruntime.NewFromConfig(awsCfg)
		return llm.NewBedrockClient(br, cfg.Model.ID, log)
	}
	log.Warn().Msg("using mock model provider")
	return &llm.MockClient{}
}

// buildFilter creates the configured guardrail chain.
func buildFilter(cfg *config.Config, awsCfg aws.Config) (guardrail.Filter, error) {
	var filters []guardrail.Filter

	switch cfg.Guardrail.Mode {
	case "off":
		return guardrail.Allow{}, nil
	case "rules", "both", "":
		rules, err := guardrail.NewRuleFilter(cfg.Guardrail.BlockedTopics, cfg.Guardrail.BlockPII)
		if err != nil {
			return nil, fmt.Errorf("compiling guardrail rules: %w", err)
		}
		filters = append(filters, rules)
	}

	if cfg.Guardrail.Mode == "bedrock" || cfg.Guardrail.Mode == "both" {
		br := bedrockruntime.NewFromConfig(awsCfg)
		filters = append(filters, guardrail.NewBedrockFilter(br, cfg.Guardrail.ID, cfg.Guardrail.Version, log))
	}

	return guardrail.NewChain(filters...), nil
}
