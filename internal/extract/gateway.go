// Package extract turns a free-text work report into candidate structured
// data, using a language model with a regex fallback.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/resilience"
	"github.com/sells-group/worklog-cli/pkg/anthropic"
)

// ErrEmptyExtraction is returned when the model answers but no field
// carries a value.
var ErrEmptyExtraction = eris.New("extract: empty extraction")

// Gateway extracts structured information from one report.
type Gateway interface {
	Extract(ctx context.Context, raw string) (*model.ExtractedInfo, error)
}

const (
	extractMaxTokens   = 1024
	extractTemperature = 0.1
)

const systemPrompt = `You extract structured data from farm work reports written by field staff in Japanese or English.

Reply with a single JSON object and nothing else. Use null for anything the report does not state.

{
  "work_date": "YYYY-MM-DD when a date is written, otherwise the relative expression as written (e.g. 昨日, yesterday, 3日前)",
  "field_name": "field, plot or greenhouse name as written",
  "crop_name": "crop name as written",
  "work_category": "one of prevention, fertilization, cultivation, harvest, maintenance, other",
  "materials": ["product names of pesticides, fertilizers or other inputs"],
  "quantity": 0,
  "unit": "unit of the quantity, e.g. L, ml, kg, 倍",
  "work_count": 0,
  "notes": "anything else worth keeping"
}

Do not guess names that are not in the report. Do not translate names.`

// LLMGateway extracts with the Anthropic Messages API.
type LLMGateway struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	schema  *jsonschema.Schema
}

// NewLLMGateway builds a gateway from configuration.
func NewLLMGateway(client anthropic.Client, ac config.AnthropicConfig, ec config.ExtractionConfig) (*LLMGateway, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if ac.RequestsPerSecond > 0 {
		limit = rate.Limit(ac.RequestsPerSecond)
	}
	burst := ac.Burst
	if burst <= 0 {
		burst = 1
	}

	retry := resilience.FromExtractionConfig(ec)
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")

	cbCfg := resilience.FromCircuitConfig("extract", ec.CircuitFailureThreshold, ec.CircuitResetSecs)
	cbCfg.ShouldTrip = trips

	return &LLMGateway{
		client:  client,
		model:   ac.Model,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker(cbCfg),
		retry:   retry,
		schema:  schema,
	}, nil
}

// Extract asks the model for the fields of raw.
func (g *LLMGateway) Extract(ctx context.Context, raw string) (*model.ExtractedInfo, error) {
	start := time.Now()
	info, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*model.ExtractedInfo, error) {
		return resilience.DoVal(ctx, g.retry, g.attempt(raw))
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("extraction complete",
		zap.String("source", info.Source),
		zap.Duration("elapsed", time.Since(start)),
	)
	return info, nil
}

func (g *LLMGateway) attempt(raw string) func(ctx context.Context) (*model.ExtractedInfo, error) {
	return func(ctx context.Context) (*model.ExtractedInfo, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit wait")
		}

		temp := extractTemperature
		resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       g.model,
			MaxTokens:   extractMaxTokens,
			System:      anthropic.CachedSystem(systemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: raw}},
			Temperature: &temp,
		})
		if err != nil {
			return nil, err
		}
		resp.Usage.LogCost(g.model, "extract")

		if resp.Truncated() {
			zap.L().Warn("extraction response truncated, repairing",
				zap.Int64("output_tokens", resp.Usage.OutputTokens),
			)
		}
		return parseResponse(g.schema, resp.Text())
	}
}

// trips reports whether err counts against the breaker. An empty answer
// means the service is up.
func trips(err error) bool {
	return err != nil && !errors.Is(err, ErrEmptyExtraction) && !errors.Is(err, context.Canceled)
}

var _ Gateway = (*LLMGateway)(nil)
