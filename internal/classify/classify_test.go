package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/catalog"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/pkg/anthropic"
)

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20, CacheReadInputTokens: 80},
	}
}

var apple = model.CompanyInfo{Tic: "AAPL", Name: "Apple Inc.", Sector: "Technology"}

func guidanceDef(t *testing.T) catalog.Definition {
	t.Helper()
	def, err := catalog.Lookup(model.CatalystGuidanceOutlook)
	require.NoError(t, err)
	return def
}

func testChunk() model.RetrievedChunk {
	return model.RetrievedChunk{
		EventID:        "ev-1",
		ChunkID:        3,
		CatalystType:   model.CatalystGuidanceOutlook,
		RetrievalQuery: "guidance reaffirmed or withdrawn",
		Content:        "We reaffirm the FY2025 revenue guidance we raised last quarter.",
	}
}

func TestClassify_Pass(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == DefaultStage1Model &&
			req.Temperature != nil && *req.Temperature == 0 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			strings.Contains(req.Messages[0].Content, "--- CHUNK TO ANALYZE ---\nWe reaffirm")
	})).Return(textResponse("```json\n{\"is_catalyst\": 1, \"rationale\": \"Reaffirms raised guidance.\"}\n```"), nil)

	v, err := NewClassifier(gen, nil, Config{}).Classify(context.Background(), apple, guidanceDef(t), testChunk())
	require.NoError(t, err)
	assert.True(t, v.Candidate.IsCatalyst)
	assert.Equal(t, "Reaffirms raised guidance.", v.Candidate.Rationale)
	assert.Equal(t, model.CatalystGuidanceOutlook, v.Candidate.CatalystType)
	assert.Equal(t, int64(100), v.Usage.InputTokens)
	assert.Equal(t, 80, v.Usage.Tokens().CacheReadTokens)
	gen.AssertExpectations(t)
}

func TestClassify_Reject(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"is_catalyst": "0", "rationale": "Q&A logistics"}`), nil)

	v, err := NewClassifier(gen, nil, Config{}).Classify(context.Background(), apple, guidanceDef(t), testChunk())
	require.NoError(t, err)
	assert.False(t, v.Candidate.IsCatalyst)
}

func TestClassify_RationaleCapped(t *testing.T) {
	gen := &mockGenerator{}
	long := strings.Repeat("word ", 100)
	gen.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"is_catalyst": 1, "rationale": "`+long+`"}`), nil)

	v, err := NewClassifier(gen, nil, Config{}).Classify(context.Background(), apple, guidanceDef(t), testChunk())
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(v.Candidate.Rationale)), maxRationaleChars)
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *anthropic.MessageResponse
		err     error
		wantRaw bool
	}{
		{name: "generator failure", err: errors.New("400 bad request")},
		{name: "not json", resp: textResponse("I cannot help with that."), wantRaw: true},
		{name: "out of range", resp: textResponse(`{"is_catalyst": 2, "rationale": "x"}`), wantRaw: true},
		{name: "missing flag", resp: textResponse(`{"rationale": "x"}`), wantRaw: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			if tt.resp != nil {
				gen.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, nil)
			} else {
				gen.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			v, err := NewClassifier(gen, nil, Config{}).Classify(context.Background(), apple, guidanceDef(t), testChunk())
			require.Error(t, err)
			assert.Nil(t, v)
			assert.True(t, model.IsKind(err, model.KindClassification))

			var cerr *model.Error
			require.True(t, errors.As(err, &cerr))
			if tt.wantRaw {
				assert.NotEmpty(t, cerr.Raw)
			}
		})
	}
}
