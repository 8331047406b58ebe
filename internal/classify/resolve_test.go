package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/pkg/anthropic"
)

func existingGuidance() []model.Catalyst {
	area := model.ImpactRevenue
	return []model.Catalyst{{
		CatalystID:   "g1",
		CatalystType: model.CatalystGuidanceOutlook,
		State:        model.StateAnnounced,
		Title:        "Raised FY2025 revenue guidance",
		ImpactArea:   &area,
		Sentiment:    1,
	}}
}

func newTestResolver(gen anthropic.Client) *Resolver {
	r := NewResolver(gen, nil, Config{})
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
	return r
}

func TestResolve_MatchCoercesAnnouncedToUpdated(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == DefaultStage2Model &&
			strings.Contains(req.System[0].Text, "MATCHING RULES") &&
			strings.Contains(req.Messages[0].Content, `"catalyst_id":"g1"`)
	})).Return(textResponse(`{"catalyst_id": "g1", "state": "announced", "title": "FY2025 revenue guidance reaffirmed",
		"summary": "Management reaffirmed the raised guidance.", "evidence": "We reaffirm the FY2025 revenue guidance",
		"time_horizon": 1, "certainty": "confirmed", "impact_area": "revenue", "sentiment": 0, "impact_magnitude": 0}`), nil)

	current := existingGuidance()
	out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "Reaffirms guidance.", &current)
	require.NoError(t, err)

	assert.Equal(t, ResolvedMatch, out.Resolution)
	assert.Equal(t, "g1", out.Catalyst.CatalystID)
	assert.Equal(t, model.StateUpdated, out.Catalyst.State)
	assert.Equal(t, model.Tri(0), out.Catalyst.Sentiment)
	require.Len(t, current, 1)
	assert.Equal(t, "FY2025 revenue guidance reaffirmed", current[0].Title)
	assert.Equal(t, model.StateUpdated, current[0].State)
}

func TestResolve_KeepsTerminalStatesOnMatch(t *testing.T) {
	for _, state := range []model.LifecycleState{model.StateWithdrawn, model.StateRealized} {
		t.Run(string(state), func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("CreateMessage", mock.Anything, mock.Anything).
				Return(textResponse(`{"catalyst_id": "g1", "state": "`+string(state)+`", "title": "Guidance withdrawn"}`), nil)

			current := existingGuidance()
			out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
			require.NoError(t, err)
			assert.Equal(t, state, out.Catalyst.State)
		})
	}
}

func TestResolve_NewAppendsAndForcesAnnounced(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"catalyst_id": null, "state": "updated", "title": "Initiated FY2026 margin outlook"}`), nil)

	current := existingGuidance()
	out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
	require.NoError(t, err)

	assert.Equal(t, ResolvedNew, out.Resolution)
	assert.Equal(t, "new-1", out.Catalyst.CatalystID)
	assert.Equal(t, model.StateAnnounced, out.Catalyst.State)
	require.Len(t, current, 2)
	assert.Equal(t, "new-1", current[1].CatalystID)
	assert.Equal(t, "g1", current[0].CatalystID)
}

func TestResolve_UnknownIDIsNew(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"catalyst_id": "made-up", "state": "updated", "title": "Something"}`), nil)

	current := existingGuidance()
	out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
	require.NoError(t, err)
	assert.Equal(t, ResolvedNew, out.Resolution)
	assert.Equal(t, "new-1", out.Catalyst.CatalystID)
	assert.Equal(t, model.StateAnnounced, out.Catalyst.State)
	assert.Len(t, current, 2)
}

func TestResolve_Normalizes(t *testing.T) {
	gen := &mockGenerator{}
	title := strings.Repeat("long ", 20)
	gen.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"catalyst_id": null, "state": "announced", "title": "`+title+`",
			"time_horizon": 7, "certainty": "likely", "impact_area": "Revenue", "sentiment": 4, "impact_magnitude": "-1"}`), nil)

	var current []model.Catalyst
	out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
	require.NoError(t, err)

	c := out.Catalyst
	assert.Len(t, strings.Fields(c.Title), maxTitleWords)
	assert.Nil(t, c.TimeHorizon)
	assert.Nil(t, c.Certainty)
	require.NotNil(t, c.ImpactArea)
	assert.Equal(t, model.ImpactRevenue, *c.ImpactArea)
	assert.Equal(t, model.Tri(0), c.Sentiment)
	assert.Equal(t, model.Tri(-1), c.ImpactMagnitude)
	assert.Equal(t, model.CatalystGuidanceOutlook, c.CatalystType)
}

func TestResolve_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		resp *anthropic.MessageResponse
		err  error
	}{
		{name: "generator error", err: errors.New("400 invalid request")},
		{name: "malformed", resp: textResponse("no json at all")},
		{name: "missing title", resp: textResponse(`{"catalyst_id": "g1", "state": "updated"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			if tt.resp != nil {
				gen.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, nil)
			} else {
				gen.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			current := existingGuidance()
			out, err := newTestResolver(gen).Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "Reaffirms FY2025 guidance.", &current)
			require.NoError(t, err)

			assert.Equal(t, ResolvedFallback, out.Resolution)
			assert.Equal(t, "new-1", out.Catalyst.CatalystID)
			assert.Equal(t, model.StateAnnounced, out.Catalyst.State)
			assert.Equal(t, "Reaffirms FY2025 guidance.", out.Catalyst.Title)
			assert.True(t, strings.HasPrefix(testChunk().Content, out.Catalyst.Evidence))
			assert.True(t, model.IsKind(out.Err, model.KindClassification))
			assert.Len(t, current, 2)
		})
	}
}

func TestResolve_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	current := existingGuidance()
	out, err := newTestResolver(gen).Resolve(ctx, apple, guidanceDef(t), testChunk(), "", &current)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Len(t, current, 1)
}

func TestResolve_LaterChunksSeeEarlierOutcomes(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return !strings.Contains(req.Messages[0].Content, "new-1")
	})).Return(textResponse(`{"catalyst_id": null, "state": "announced", "title": "Launched services bundle"}`), nil).Once()
	gen.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, `"catalyst_id":"new-1"`)
	})).Return(textResponse(`{"catalyst_id": "new-1", "state": "realized", "title": "Services bundle shipped"}`), nil).Once()

	r := newTestResolver(gen)
	var current []model.Catalyst
	first, err := r.Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), apple, guidanceDef(t), testChunk(), "", &current)
	require.NoError(t, err)

	assert.Equal(t, ResolvedNew, first.Resolution)
	assert.Equal(t, ResolvedMatch, second.Resolution)
	assert.Equal(t, "new-1", second.Catalyst.CatalystID)
	require.Len(t, current, 1)
	assert.Equal(t, model.StateRealized, current[0].State)
	gen.AssertExpectations(t)
}
