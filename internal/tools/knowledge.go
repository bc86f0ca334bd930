package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// RetrieveAPI is the slice of the Bedrock agent runtime client the
// knowledge tool needs.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// knowledgeResults caps how many passages a single lookup returns; voice
// answers only ever use the top few.
const knowledgeResults = 3

// KnowledgeTool searches a Bedrock knowledge base for passages answering
// the caller's question.
type KnowledgeTool struct {
	client          RetrieveAPI
	knowledgeBaseID string
}

// NewKnowledgeTool creates a knowledge-base search tool.
func NewKnowledgeTool(client RetrieveAPI, knowledgeBaseID string) *KnowledgeTool {
	return &KnowledgeTool{client: client, knowledgeBaseID: knowledgeBaseID}
}

func (t *KnowledgeTool) Name() string { return "search_knowledge_base" }

func (t *KnowledgeTool) Description() string {
	return "Search the company knowledge base for information to answer customer questions."
}

func (t *KnowledgeTool) InputSchema() string {
	return `{"type":"object","properties":{"query":{"type":"string","description":"The search query based on the customer's question"}},"required":["query"]}`
}

func (t *KnowledgeTool) Execute(ctx context.Context, input string) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("parsing query: %w", err)
	}
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	out, err := t.client.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(t.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(in.Query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(knowledgeResults),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("knowledge base retrieve: %w", err)
	}

	var passages []string
	for _, r := range out.RetrievalResults {
		if r.Content != nil && r.Content.Text != nil {
			passages = append(passages, *r.Content.Text)
		}
	}

	result, err := json.Marshal(map[string]any{"results": passages})
	return string(result), err
}
