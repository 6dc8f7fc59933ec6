// Package reasoning asks a language model whether a partially complete work
// report can be registered using the submitter's recent history.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/extract"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/resilience"
	"github.com/sells-group/worklog-cli/pkg/anthropic"
)

// ErrUnavailable wraps every failure to obtain an analysis.
var ErrUnavailable = eris.New("reasoning: context reasoning unavailable")

// MaxHistory is the most recent work logs sent with a request.
const MaxHistory = 5

// maxReasoningRunes bounds the reasoning text kept from a response.
const maxReasoningRunes = 200

// Request is the input to one analysis.
type Request struct {
	Raw     string
	Info    model.ExtractedInfo
	Verdict model.ValidationVerdict
	History []model.WorkLog
}

// Service analyzes a submission in context.
type Service interface {
	Analyze(ctx context.Context, req Request) (*model.ContextAnalysis, error)
}

const systemPrompt = `You review farm work reports that are missing one or two details. Using the report, the extracted values, the reconciliation result and the submitter's recent work logs, decide whether the record can be registered without asking the submitter.

Reply with a single JSON object and nothing else:

{
  "recommended_action": "urgent_auto | inferred_auto | confirm_with_suggestions | require_confirmation",
  "confidence": 0.0,
  "reasoning": "one or two sentences",
  "urgency_level": "low | medium | high",
  "inferred_fields": {"work_date": "...", "field_name": "...", "crop_name": "...", "work_category": "...", "unit": "..."}
}

Use urgent_auto only when the report is time critical and complete enough. Use inferred_auto only when the recent logs make the missing values clear, and put those values in inferred_fields. Otherwise ask for confirmation.`

const (
	reasoningMaxTokens   = 512
	reasoningTemperature = 0.2
)

// LLMService implements Service with the Anthropic Messages API.
type LLMService struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewLLMService builds a Service from configuration.
func NewLLMService(client anthropic.Client, ac config.AnthropicConfig, rc config.ReasoningConfig) *LLMService {
	limit := rate.Inf
	if ac.RequestsPerSecond > 0 {
		limit = rate.Limit(ac.RequestsPerSecond)
	}
	burst := ac.Burst
	if burst <= 0 {
		burst = 1
	}
	modelName := ac.ReasoningModel
	if modelName == "" {
		modelName = ac.Model
	}

	retry := resilience.FromReasoningConfig(rc)
	retry.OnRetry = resilience.RetryLogger("anthropic", "reasoning")

	return &LLMService{
		client:  client,
		model:   modelName,
		limiter: rate.NewLimiter(limit, burst),
		retry:   retry,
	}
}

// Analyze returns the model's recommendation for req. Any failure wraps
// ErrUnavailable.
func (s *LLMService) Analyze(ctx context.Context, req Request) (*model.ContextAnalysis, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "build prompt: %v", err)
	}

	analysis, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*model.ContextAnalysis, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "reasoning: rate limit wait")
		}
		temp := reasoningTemperature
		resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       s.model,
			MaxTokens:   reasoningMaxTokens,
			System:      anthropic.CachedSystem(systemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
		if err != nil {
			return nil, err
		}
		resp.Usage.LogCost(s.model, "reasoning")
		return parseAnalysis(resp.Text())
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, eris.Wrapf(ErrUnavailable, "%v", err)
	}

	zap.L().Debug("context analysis",
		zap.String("action", string(analysis.Action)),
		zap.Float64("confidence", analysis.Confidence),
	)
	return analysis, nil
}

type promptContext struct {
	Report    string              `yaml:"report"`
	Extracted model.ExtractedInfo `yaml:"extracted"`
	Matches   map[string]string   `yaml:"matches,omitempty"`
	Missing   []model.MissingItem `yaml:"missing"`
	Valid     bool                `yaml:"valid"`
	History   []historyEntry      `yaml:"recent_logs,omitempty"`
}

type historyEntry struct {
	Date     string   `yaml:"date"`
	Field    string   `yaml:"field,omitempty"`
	Crop     string   `yaml:"crop,omitempty"`
	Category string   `yaml:"category,omitempty"`
	Material []string `yaml:"materials,omitempty"`
	Quantity string   `yaml:"quantity,omitempty"`
}

// buildPrompt renders the request as YAML for the user turn.
func buildPrompt(req Request) (string, error) {
	pc := promptContext{
		Report:    req.Raw,
		Extracted: req.Info,
		Matches:   map[string]string{},
		Missing:   req.Verdict.Missing,
		Valid:     req.Verdict.Valid,
	}
	pc.Extracted.Confidence = nil
	describe := func(key string, r *model.MatchResult) {
		if r == nil {
			return
		}
		switch {
		case r.Best == nil:
			pc.Matches[key] = "no match"
		default:
			pc.Matches[key] = fmt.Sprintf("%s (%s, %.2f)", r.Best.Name, r.Quality, r.Best.Confidence)
		}
	}
	describe("field", req.Verdict.Field)
	describe("crop", req.Verdict.Crop)
	for i := range req.Verdict.Materials {
		describe(fmt.Sprintf("material %d", i+1), &req.Verdict.Materials[i].Result)
	}

	history := req.History
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	for _, l := range history {
		e := historyEntry{
			Date:     l.WorkDate.Format("2006-01-02"),
			Field:    l.FieldName,
			Crop:     l.CropName,
			Category: string(l.WorkCategory),
		}
		for _, m := range l.Materials {
			e.Material = append(e.Material, m.Name)
		}
		if l.Quantity != nil {
			e.Quantity = strings.TrimSpace(fmt.Sprintf("%g %s", *l.Quantity, l.Unit))
		}
		pc.History = append(pc.History, e)
	}

	out, err := yaml.Marshal(pc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type rawAnalysis struct {
	Action     string         `json:"recommended_action"`
	Confidence any            `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Urgency    string         `json:"urgency_level"`
	Inferred   map[string]any `json:"inferred_fields"`
}

// parseAnalysis decodes a response, normalizing the action and bounding
// the reasoning text.
func parseAnalysis(text string) (*model.ContextAnalysis, error) {
	cleaned := extract.CleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("reasoning: empty response")
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "reasoning: decode response")
	}

	out := &model.ContextAnalysis{
		Action:     normalizeAction(raw.Action),
		Confidence: toConfidence(raw.Confidence),
		Reasoning:  truncateRunes(strings.TrimSpace(raw.Reasoning), maxReasoningRunes),
		Urgency:    strings.ToLower(strings.TrimSpace(raw.Urgency)),
	}
	for k, v := range raw.Inferred {
		s := ""
		switch x := v.(type) {
		case string:
			s = strings.TrimSpace(x)
		case float64:
			s = fmt.Sprintf("%g", x)
		}
		if s == "" {
			continue
		}
		if out.Inferred == nil {
			out.Inferred = map[string]string{}
		}
		out.Inferred[k] = s
	}
	return out, nil
}

func normalizeAction(a string) model.ContextAction {
	switch act := model.ContextAction(strings.ToLower(strings.TrimSpace(a))); act {
	case model.ContextUrgentAuto, model.ContextInferredAuto,
		model.ContextConfirmWithSuggestions, model.ContextRequireConfirmation:
		return act
	default:
		return model.ContextRequireConfirmation
	}
}

func toConfidence(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		if _, err := fmt.Sscanf(strings.TrimSpace(x), "%g", &f); err != nil {
			return 0
		}
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

var _ Service = (*LLMService)(nil)
