package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/resilience"
	"github.com/sells-group/worklog-cli/pkg/anthropic"
	"github.com/sells-group/worklog-cli/pkg/anthropic/mocks"
)

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		MaxAttempts:             3,
		InitialBackoffMs:        1,
		MaxBackoffMs:            2,
		CircuitFailureThreshold: 2,
		CircuitResetSecs:        60,
	}
}

func newTestGateway(t *testing.T, client anthropic.Client) *LLMGateway {
	t.Helper()
	g, err := NewLLMGateway(client, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"}, testExtractionConfig())
	require.NoError(t, err)
	return g
}

func TestLLMGateway_Extract(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 1024 && req.Temperature != nil && *req.Temperature == 0.1 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			len(req.Messages) == 1 && req.Messages[0].Content == "昨日ハウス3でダコニール500ml散布"
	})).Return(textResponse("```json\n"+`{
		"work_date": "昨日",
		"field_name": "ハウス3",
		"crop_name": null,
		"work_category": "prevention",
		"materials": ["ダコニール"],
		"quantity": 500,
		"unit": "ml",
		"work_count": null,
		"notes": null
	}`+"\n```"), nil).Once()

	g := newTestGateway(t, client)
	info, err := g.Extract(context.Background(), "昨日ハウス3でダコニール500ml散布")
	require.NoError(t, err)

	assert.Equal(t, "昨日", info.WorkDate)
	assert.Equal(t, "ハウス3", info.FieldName)
	assert.Empty(t, info.CropName)
	assert.Equal(t, model.CategoryPrevention, info.WorkCategory)
	assert.Equal(t, []string{"ダコニール"}, info.Materials)
	require.NotNil(t, info.Quantity)
	assert.Equal(t, 500.0, *info.Quantity)
	assert.Equal(t, "ml", info.Unit)
	assert.Nil(t, info.WorkCount)
	assert.Equal(t, model.SourceLLM, info.Source)
	client.AssertExpectations(t)
}

func TestLLMGateway_LooseTypes(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"field_name": "greenhouse-1",
		"work_category": "防除",
		"materials": "Fungicide-X, Copper 、 none",
		"quantity": "1.5L",
		"work_count": "2",
		"notes": "N/A"
	}`), nil).Once()

	info, err := newTestGateway(t, client).Extract(context.Background(), "sprayed")
	require.NoError(t, err)

	assert.Equal(t, []string{"Fungicide-X", "Copper"}, info.Materials)
	require.NotNil(t, info.Quantity)
	assert.Equal(t, 1.5, *info.Quantity)
	assert.Equal(t, "L", info.Unit)
	require.NotNil(t, info.WorkCount)
	assert.Equal(t, 2, *info.WorkCount)
	assert.Empty(t, info.Notes)
	// Non-canonical labels are kept for scoring; they are canonicalized on commit.
	assert.Equal(t, model.WorkCategory("防除"), info.WorkCategory)
}

func TestLLMGateway_TruncatedResponse(t *testing.T) {
	client := mocks.NewMockClient(t)
	resp := textResponse(`{"field_name": "greenhouse-2", "materials": ["Fungicide-X", "Cop`)
	resp.StopReason = "max_tokens"
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(resp, nil).Once()

	info, err := newTestGateway(t, client).Extract(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, "greenhouse-2", info.FieldName)
	assert.Equal(t, []string{"Fungicide-X", "Cop"}, info.Materials)
}

func TestLLMGateway_EmptyExtraction(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"work_date": null, "field_name": "", "materials": []}`), nil)

	g := newTestGateway(t, client)
	for i := 0; i < 3; i++ {
		_, err := g.Extract(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrEmptyExtraction)
	}
	// Empty answers are not retried and do not trip the breaker.
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
	assert.Equal(t, resilience.CircuitClosed, g.breaker.State())
}

func TestLLMGateway_SchemaViolation(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"field_name": 42, "quantity": true}`), nil).Once()

	_, err := newTestGateway(t, client).Extract(context.Background(), "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestLLMGateway_RetriesTransient(t *testing.T) {
	client := mocks.NewMockClient(t)
	transient := resilience.NewTransientError(errors.New("overloaded"), 529)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, transient).Twice()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"field_name": "field-7"}`), nil).Once()

	info, err := newTestGateway(t, client).Extract(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, "field-7", info.FieldName)
	client.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestLLMGateway_PermanentErrorNotRetried(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid request")).Once()

	_, err := newTestGateway(t, client).Extract(context.Background(), "report")
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestLLMGateway_CircuitOpens(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid request"))

	g := newTestGateway(t, client)
	for i := 0; i < 2; i++ {
		_, err := g.Extract(context.Background(), "report")
		require.Error(t, err)
	}

	_, err := g.Extract(context.Background(), "report")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

type stubGateway struct {
	info *model.ExtractedInfo
	err  error
}

func (s stubGateway) Extract(context.Context, string) (*model.ExtractedInfo, error) {
	return s.info, s.err
}

func TestFallbackGateway_UsesPrimary(t *testing.T) {
	primary := stubGateway{info: &model.ExtractedInfo{FieldName: "field-1", Source: model.SourceLLM}}
	g := NewFallbackGateway(primary, nil)

	info, err := g.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, model.SourceLLM, info.Source)
}

func TestFallbackGateway_DegradesOnError(t *testing.T) {
	tests := []struct {
		name    string
		primary Gateway
	}{
		{"error", stubGateway{err: errors.New("boom")}},
		{"circuit open", stubGateway{err: resilience.ErrCircuitOpen}},
		{"empty", stubGateway{info: &model.ExtractedInfo{}}},
		{"nil primary", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewFallbackGateway(tt.primary, NewHeuristic(0.3))
			info, err := g.Extract(context.Background(), "昨日ハウス3で防除")
			require.NoError(t, err)
			assert.Equal(t, model.SourceFallback, info.Source)
			assert.Equal(t, "ハウス3", info.FieldName)
			assert.LessOrEqual(t, info.ConfidenceValue(), 0.3)
		})
	}
}

func TestFallbackGateway_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewFallbackGateway(stubGateway{err: context.Canceled}, nil)
	_, err := g.Extract(ctx, "昨日ハウス3で防除")
	assert.ErrorIs(t, err, context.Canceled)
}
