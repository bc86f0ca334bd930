package guardrail

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/voxloop/voxloop/internal/logging"
)

// BedrockAPI is the slice of the Bedrock runtime client the filter needs.
type BedrockAPI interface {
	ApplyGuardrail(ctx context.Context, params *bedrockruntime.ApplyGuardrailInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ApplyGuardrailOutput, error)
}

// BedrockFilter checks content against a managed Bedrock guardrail.
// API failures fail open with a warning: a guardrail outage must not take
// down live calls, and the rule filter still runs ahead of this one.
type BedrockFilter struct {
	client  BedrockAPI
	id      string
	version string
	log     *logging.Logger
}

// NewBedrockFilter creates a filter for the given guardrail id and version.
func NewBedrockFilter(client BedrockAPI, id, version string, log *logging.Logger) *BedrockFilter {
	return &BedrockFilter{
		client:  client,
		id:      id,
		version: version,
		log:     log.Sub("guardrail.bedrock"),
	}
}

func (f *BedrockFilter) apply(ctx context.Context, text string, source types.GuardrailContentSource) (Verdict, error) {
	out, err := f.client.ApplyGuardrail(ctx, &bedrockruntime.ApplyGuardrailInput{
		GuardrailIdentifier: aws.String(f.id),
		GuardrailVersion:    aws.String(f.version),
		Source:              source,
		Content: []types.GuardrailContentBlock{
			&types.GuardrailContentBlockMemberText{
				Value: types.GuardrailTextBlock{Text: aws.String(text)},
			},
		},
	})
	if err != nil {
		f.log.Warn().Err(err).Msg("guardrail check failed, failing open")
		return Verdict{Allowed: true}, err
	}

	if out.Action == types.GuardrailActionGuardrailIntervened {
		return Verdict{Allowed: false, Category: firstTopic(out)}, nil
	}
	return Verdict{Allowed: true}, nil
}

func (f *BedrockFilter) CheckInput(ctx context.Context, text string) (Verdict, error) {
	return f.apply(ctx, text, types.GuardrailContentSourceInput)
}

func (f *BedrockFilter) CheckOutput(ctx context.Context, text string) (Verdict, error) {
	return f.apply(ctx, text, types.GuardrailContentSourceOutput)
}

// firstTopic extracts the first matched topic name from the assessment, if
// the guardrail reported one.
func firstTopic(out *bedrockruntime.ApplyGuardrailOutput) string {
	for _, a := range out.Assessments {
		if a.TopicPolicy == nil {
			continue
		}
		for _, topic := range a.TopicPolicy.Topics {
			if topic.Name != nil {
				return "topic:" + *topic.Name
			}
		}
	}
	return "guardrail"
}
