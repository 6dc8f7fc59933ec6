package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/pkg/anthropic"
	"github.com/sells-group/worklog-cli/pkg/anthropic/mocks"
)

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

func newService(client anthropic.Client) *LLMService {
	return NewLLMService(client,
		config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", ReasoningModel: "claude-sonnet-4-5-20250929"},
		config.ReasoningConfig{MaxAttempts: 2, InitialBackoffMs: 1},
	)
}

func sampleRequest() Request {
	return Request{
		Raw:  "applied fungicide-X on tomato",
		Info: model.ExtractedInfo{CropName: "tomato", Materials: []string{"fungicide-X"}, WorkCategory: model.CategoryPrevention},
		Verdict: model.ValidationVerdict{
			Crop:      &model.MatchResult{Input: "tomato", Best: &model.Match{ID: "c1", Name: "Tomato", Confidence: 1}, Quality: model.QualityExact},
			Materials: []model.MaterialMatch{{Input: "fungicide-X", Result: model.NoMatch("fungicide-X")}},
			Missing:   []model.MissingItem{model.MissingWorkDate, model.MissingFieldName},
		},
		History: []model.WorkLog{{
			WorkDate:  time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
			FieldName: "greenhouse-1",
			CropName:  "Tomato",
			Quantity:  model.Float(500),
			Unit:      "ml",
			Materials: []model.ResolvedMaterial{{ID: "m1", Name: "fungicide-X"}},
		}},
	}
}

func TestAnalyze(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			strings.Contains(req.Messages[0].Content, "greenhouse-1") &&
			strings.Contains(req.Messages[0].Content, "2026-10-16")
	})).Return(reply("```json\n"+`{
		"recommended_action": "inferred_auto",
		"confidence": 0.72,
		"reasoning": "Same crop and material as two days ago in greenhouse-1.",
		"urgency_level": "Low",
		"inferred_fields": {"field_name": "greenhouse-1", "work_date": "today", "unit": null}
	}`+"\n```"), nil).Once()

	got, err := newService(client).Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, model.ContextInferredAuto, got.Action)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)
	assert.Equal(t, "low", got.Urgency)
	assert.Equal(t, map[string]string{"field_name": "greenhouse-1", "work_date": "today"}, got.Inferred)
	client.AssertExpectations(t)
}

func TestAnalyze_NormalizesResponse(t *testing.T) {
	long := strings.Repeat("あ", 250)
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(`{"recommended_action": "ship_it", "confidence": "1.7", "reasoning": "`+long+`"}`), nil).Once()

	got, err := newService(client).Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, model.ContextRequireConfirmation, got.Action)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, 200, utf8.RuneCountInString(got.Reasoning))
	assert.Nil(t, got.Inferred)
}

func TestAnalyze_Unavailable(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid request")).Once()

	_, err := newService(client).Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyze_MalformedReply(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("I cannot help with that."), nil).Once()

	_, err := newService(client).Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := mocks.NewMockClient(t)
	_, err := newService(client).Analyze(ctx, sampleRequest())
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestBuildPrompt_LimitsHistory(t *testing.T) {
	req := sampleRequest()
	for i := 0; i < 8; i++ {
		req.History = append(req.History, model.WorkLog{
			WorkDate:  time.Date(2026, 9, 1+i, 0, 0, 0, 0, time.UTC),
			FieldName: "field-9",
		})
	}

	prompt, err := buildPrompt(req)
	require.NoError(t, err)
	assert.Equal(t, MaxHistory, strings.Count(prompt, "date: "))
	assert.Contains(t, prompt, "material 1: no match")
	assert.Contains(t, prompt, "- work_date")
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, model.ContextUrgentAuto, normalizeAction(" URGENT_AUTO "))
	assert.Equal(t, model.ContextConfirmWithSuggestions, normalizeAction("confirm_with_suggestions"))
	assert.Equal(t, model.ContextRequireConfirmation, normalizeAction(""))
}
