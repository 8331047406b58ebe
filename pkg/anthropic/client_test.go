package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		System:    BuildCachedSystemBlocks("stage 1"),
		Messages:  []Message{{Role: "user", Content: "chunk"}},
	}
	mc.On("CreateMessage", ctx, req).Return(&MessageResponse{
		ID:      "msg_1",
		Content: []ContentBlock{{Type: "text", Text: `{"is_catalyst": 1, "rationale": "raised guidance"}`}},
		Usage:   TokenUsage{InputTokens: 120, OutputTokens: 18},
	}, nil).Once()

	var c Client = mc
	resp, err := c.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Contains(t, resp.Text(), "raised guidance")
	mc.AssertExpectations(t)
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: `{"a":`},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: ` 1}`},
	}}
	assert.Equal(t, `{"a": 1}`, resp.Text())
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 2)
	assert.Equal(t, "user", string(sdkMsgs[0].Role))
	assert.Equal(t, "assistant", string(sdkMsgs[1].Role))
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "You are a helpful assistant."},
		{Text: "Context data here.", CacheControl: &CacheControl{TTL: "1h"}},
	}

	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 2)
	assert.Equal(t, "You are a helpful assistant.", sdkBlocks[0].Text)
	assert.Equal(t, "Context data here.", sdkBlocks[1].Text)
}

func TestTokenUsage_Total(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              500,
		OutputTokens:             100,
		CacheCreationInputTokens: 200,
		CacheReadInputTokens:     300,
	}
	assert.Equal(t, int64(1100), usage.Total())
}

func TestMessageResponse_Truncated(t *testing.T) {
	assert.True(t, (&MessageResponse{StopReason: "max_tokens"}).Truncated())
	assert.False(t, (&MessageResponse{StopReason: "end_turn"}).Truncated())
}
