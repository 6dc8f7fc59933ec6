// Package pipeline is the caller-facing entry point: it runs a report
// through extraction, scoring, validation and registration, and resumes
// registration once a submitter answers a confirmation.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/extract"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/scorer"
	"github.com/sells-group/worklog-cli/internal/store"
	"github.com/sells-group/worklog-cli/internal/strategy"
)

var (
	// ErrInvalidSubmission is returned for a blank report or an unusable
	// override value.
	ErrInvalidSubmission = eris.New("pipeline: invalid submission")
	// ErrUnknownChoice is returned when a resume choice names no option.
	ErrUnknownChoice = eris.New("pipeline: unknown confirmation choice")
)

// Validator validates extracted information and refreshes a verdict after
// a match is pinned.
type Validator interface {
	Validate(ctx context.Context, info model.ExtractedInfo) model.ValidationVerdict
	Assess(info model.ExtractedInfo, verdict *model.ValidationVerdict)
}

// Service runs submissions and confirmation answers.
type Service struct {
	extractor     extract.Gateway
	scorer        *scorer.Scorer
	validator     Validator
	engine        *strategy.Engine
	confirmations store.ConfirmationStore
	fallbackCap   float64
}

// New creates a Service. A non-positive fallbackCap uses
// extract.DefaultFallbackMaxConfidence.
func New(
	extractor extract.Gateway,
	sc *scorer.Scorer,
	validator Validator,
	engine *strategy.Engine,
	confirmations store.ConfirmationStore,
	fallbackCap float64,
) *Service {
	if fallbackCap <= 0 {
		fallbackCap = extract.DefaultFallbackMaxConfidence
	}
	return &Service{
		extractor:     extractor,
		scorer:        sc,
		validator:     validator,
		engine:        engine,
		confirmations: confirmations,
		fallbackCap:   fallbackCap,
	}
}

// SubmitWorkReport registers raw for submitterID, or returns a
// confirmation when it cannot be registered as is. Only a blank report and
// caller cancellation are returned as errors.
func (s *Service) SubmitWorkReport(ctx context.Context, raw, submitterID string) (*model.RegistrationResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, eris.Wrap(ErrInvalidSubmission, "work report is blank")
	}

	start := time.Now()
	log := zap.L().With(zap.String("submitter_id", submitterID))

	info, err := s.extractor.Extract(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn("pipeline: extraction failed, continuing with an empty record", zap.Error(err))
		info = &model.ExtractedInfo{Source: model.SourceFallback}
	}

	s.score(info)
	verdict := s.validator.Validate(ctx, *info)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.engine.Route(ctx, strategy.Submission{
		Raw:         raw,
		SubmitterID: submitterID,
		Info:        *info,
		Verdict:     verdict,
	})
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: report processed",
		zap.String("source", info.Source),
		zap.Float64("confidence", info.ConfidenceValue()),
		zap.Bool("valid", verdict.Valid),
		zap.String("strategy", res.Strategy),
		zap.Bool("success", res.Success),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// score sets the confidence of info. Heuristic results are capped.
func (s *Service) score(info *model.ExtractedInfo) {
	c, err := s.scorer.Score(info)
	if err != nil {
		zap.L().Warn("pipeline: scoring failed, confidence set to zero", zap.Error(err))
		c = 0
	}
	if info.Source == model.SourceFallback && c > s.fallbackCap {
		c = s.fallbackCap
	}
	info.SetConfidence(c)
}
