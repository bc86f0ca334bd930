package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	GenerateFunc func(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockClient) Generate(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &TurnResult{Text: "mock response", Action: "continue"}, nil
}
