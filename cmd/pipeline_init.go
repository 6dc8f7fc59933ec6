package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/extract"
	"github.com/sells-group/worklog-cli/internal/match"
	"github.com/sells-group/worklog-cli/internal/pipeline"
	"github.com/sells-group/worklog-cli/internal/reasoning"
	"github.com/sells-group/worklog-cli/internal/refdata"
	"github.com/sells-group/worklog-cli/internal/scorer"
	"github.com/sells-group/worklog-cli/internal/store"
	"github.com/sells-group/worklog-cli/internal/strategy"
	"github.com/sells-group/worklog-cli/internal/validate"
	anthropicpkg "github.com/sells-group/worklog-cli/pkg/anthropic"
)

// pipelineEnv holds the store and the service built on it.
type pipelineEnv struct {
	Store   store.Store
	Service *pipeline.Service
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens and migrates the store, then wires the service.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var client anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client = anthropicpkg.NewClient(cfg.Anthropic.Key, opts...)
	} else {
		zap.L().Warn("WORKLOG_ANTHROPIC_KEY not set, extraction uses the heuristic fallback only and context reasoning is disabled")
	}

	svc, err := buildService(cfg, st, client, time.Now)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &pipelineEnv{Store: st, Service: svc}, nil
}

// buildService assembles the pipeline from configuration. A nil client
// leaves the model-backed stages out.
func buildService(c *config.Config, st store.Store, client anthropicpkg.Client, now func() time.Time) (*pipeline.Service, error) {
	var primary extract.Gateway
	var reasoner reasoning.Service
	if client != nil {
		llm, err := extract.NewLLMGateway(client, c.Anthropic, c.Extraction)
		if err != nil {
			return nil, eris.Wrap(err, "init extraction gateway")
		}
		primary = llm
		reasoner = reasoning.NewLLMService(client, c.Anthropic, c.Reasoning)
	}
	extractor := extract.NewFallbackGateway(primary, extract.NewHeuristic(c.Extraction.FallbackMaxConfidence))

	refs := refdata.NewCachedGateway(st, time.Duration(c.RefData.CacheTTLSecs)*time.Second)
	matcher := match.NewMatcher(match.Thresholds{
		High:            c.Matcher.High,
		Medium:          c.Matcher.Medium,
		Low:             c.Matcher.Low,
		AmbiguityMargin: c.Matcher.AmbiguityMargin,
		PartialCap:      c.Matcher.PartialCap,
		MaxCandidates:   c.Matcher.MaxCandidates,
	})
	validator := validate.New(refs, matcher, validate.PolicyFromConfig(c.Validator))

	engine := strategy.NewEngine(strategy.ThresholdsFromConfig(c.Strategy), strategy.Deps{
		Writer:        st,
		History:       st,
		Confirmations: st,
		Validator:     validator,
		Reasoning:     reasoner,
		Now:           now,
		HistoryLimit:  c.Reasoning.HistoryLimit,
	})

	zap.L().Debug("pipeline wired",
		zap.Bool("llm", client != nil),
		zap.String("store", c.Store.Driver),
	)
	return pipeline.New(
		extractor,
		scorer.New(c.Scorer),
		validator,
		engine,
		st,
		c.Extraction.FallbackMaxConfidence,
	), nil
}
