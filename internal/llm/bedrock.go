package llm

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"

	"github.com/voxloop/voxloop/internal/logging"
)

// ConverseAPI is the slice of the Bedrock runtime client used for turn
// generation.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// actionMarkerRe matches the trailing [action: ...] marker the system
// prompt instructs the model to emit. The marker is parsed and stripped
// before the text reaches synthesis.
var actionMarkerRe = regexp.MustCompile(`(?i)\[action:\s*(continue|transfer|end)\s*\]\s*$`)

// BedrockClient generates turns through the Bedrock Converse API.
type BedrockClient struct {
	client  ConverseAPI
	modelID string
	log     *logging.Logger
}

// NewBedrockClient creates a client for the given model identifier.
func NewBedrockClient(client ConverseAPI, modelID string, log *logging.Logger) *BedrockClient {
	return &BedrockClient{
		client:  client,
		modelID: modelID,
		log:     log.Sub("llm.bedrock"),
	}
}

func (c *BedrockClient) Name() string { return "bedrock" }

func (c *BedrockClient) Generate(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: converseMessages(req.Messages),
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	inf := &types.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inf.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		inf.Temperature = aws.Float32(float32(*req.Temperature))
	}
	in.InferenceConfig = inf

	if len(req.Tools) > 0 {
		toolCfg, err := converseTools(req.Tools)
		if err != nil {
			return nil, err
		}
		in.ToolConfig = toolCfg
	}

	out, err := c.client.Converse(ctx, in)
	if err != nil {
		return nil, c.wrapError(err)
	}

	result := &TurnResult{
		Model:    c.modelID,
		Duration: time.Since(start),
	}
	if out.Usage != nil {
		result.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, &ProviderError{Provider: "bedrock", Message: "response carried no message"}
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			result.ToolCalls = append(result.ToolCalls, toolCallFromBlock(b.Value))
		}
	}

	result.Text, result.Action = extractAction(text.String())

	c.log.Debug().
		Str("model", c.modelID).
		Str("stopReason", string(out.StopReason)).
		Int("toolCalls", len(result.ToolCalls)).
		Dur("duration", result.Duration).
		Msg("turn generated")

	return result, nil
}

func converseMessages(msgs []Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

func converseTools(defs []ToolDefinition) (*types.ToolConfiguration, error) {
	cfg := &types.ToolConfiguration{}
	for _, d := range defs {
		var schema map[string]any
		if err := json.Unmarshal([]byte(d.InputSchema), &schema); err != nil {
			return nil, &ProviderError{
				Provider: "bedrock",
				Message:  "invalid input schema for tool " + d.Name + ": " + err.Error(),
			}
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
	}
	return cfg, nil
}

func toolCallFromBlock(tu types.ToolUseBlock) ToolCall {
	call := ToolCall{
		ID:   aws.ToString(tu.ToolUseId),
		Name: aws.ToString(tu.Name),
	}
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if tu.Input != nil {
		if data, err := tu.Input.MarshalSmithyDocument(); err == nil {
			call.Input = string(data)
		}
	}
	return call
}

// extractAction strips the trailing action marker from generated text and
// returns the cleaned text plus the declared action (may be empty).
func extractAction(text string) (string, string) {
	m := actionMarkerRe.FindStringSubmatch(text)
	if m == nil {
		return strings.TrimSpace(text), ""
	}
	cleaned := strings.TrimSpace(actionMarkerRe.ReplaceAllString(text, ""))
	return cleaned, strings.ToLower(m[1])
}

func (c *BedrockClient) wrapError(err error) error {
	var throttle *types.ThrottlingException
	if errors.As(err, &throttle) {
		return &ProviderError{Provider: "bedrock", Message: "throttled", Code: 429}
	}
	var unavailable *types.ServiceUnavailableException
	if errors.As(err, &unavailable) {
		return &ProviderError{Provider: "bedrock", Message: "service unavailable", Code: 503}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: "bedrock", Message: "model call exceeded deadline", Code: 504}
	}
	return &ProviderError{Provider: "bedrock", Message: err.Error()}
}
