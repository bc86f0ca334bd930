// The voxloop-lambda binary serves Amazon Connect contact flows. All
// collaborators are built once at cold start; each invocation is one
// conversation turn.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/connectevent"
	"github.com/voxloop/voxloop/internal/engine"
	"github.com/voxloop/voxloop/internal/guardrail"
	"github.com/voxloop/voxloop/internal/llm"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/metrics"
	"github.com/voxloop/voxloop/internal/orchestrator"
	"github.com/voxloop/voxloop/internal/session"
	"github.com/voxloop/voxloop/internal/tools"
)

func main() {
	cfg, err := config.Load(os.Getenv("VOXLOOP_CONFIG"))
	if err != nil {
		panic(err)
	}
	log := logging.NewJSON(nil, cfg.Logging.Level)

	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		log.Fatal().Int("issues", len(issues)).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Model.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("loading AWS config")
	}

	var pub metrics.Publisher = metrics.Nop{}
	if cfg.Metrics.Enabled {
		pub = metrics.NewCloudWatch(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, log)
	}

	retention := time.Duration(cfg.Store.RetentionSeconds) * time.Second
	ddb := session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.Table, retention, log)
	store := session.NewResilient(ddb, pub, log)

	model := llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.Model.ID, log)

	filter, err := buildFilter(&cfg, awsCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("building guardrail chain")
	}

	registry := tools.NewRegistry()
	registry.Register(tools.TransferTool{})
	registry.Register(tools.AccountLookupTool{})
	registry.Register(tools.ScheduleTool{})
	if cfg.Tools.KnowledgeBaseID != "" {
		kb := bedrockagentruntime.NewFromConfig(awsCfg)
		registry.Register(tools.NewKnowledgeTool(kb, cfg.Tools.KnowledgeBaseID))
	}

	eng := engine.New(model, filter, registry, &cfg, log)
	orch := orchestrator.New(store, ddb, eng, &cfg, pub, nil, log)

	log.Info().
		Str("model", cfg.Model.ID).
		Str("table", cfg.Store.Table).
		Str("guardrail", cfg.Guardrail.Mode).
		Msg("cold start complete")

	lambda.Start(func(ctx context.Context, ev connectevent.Event) (map[string]string, error) {
		requestID := ""
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			requestID = lc.AwsRequestID
		}
		inv := connectevent.Parse(ev, requestID)
		resp := orch.Handle(ctx, inv)
		return connectevent.Render(resp), nil
	})
}

func buildFilter(cfg *config.Config, awsCfg aws.Config, log *logging.Logger) (guardrail.Filter, error) {
	var filters []guardrail.Filter

	switch cfg.Guardrail.Mode {
	case "off":
		return guardrail.Allow{}, nil
	case "rules", "both", "":
		rules, err := guardrail.NewRuleFilter(cfg.Guardrail.BlockedTopics, cfg.Guardrail.BlockPII)
		if err != nil {
			return nil, err
		}
		filters = append(filters, rules)
	}

	if cfg.Guardrail.Mode == "bedrock" || cfg.Guardrail.Mode == "both" {
		br := bedrockruntime.NewFromConfig(awsCfg)
		filters = append(filters, guardrail.NewBedrockFilter(br, cfg.Guardrail.ID, cfg.Guardrail.Version, log))
	}

	return guardrail.NewChain(filters...), nil
}
