// Package strategy decides how a reconciled submission is registered:
// automatically, with help from context reasoning, or by asking the
// submitter.
package strategy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/confirm"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/reasoning"
	"github.com/sells-group/worklog-cli/internal/store"
)

// Submission is one report after extraction, scoring and validation.
type Submission struct {
	Raw         string
	SubmitterID string
	Info        model.ExtractedInfo
	Verdict     model.ValidationVerdict
	// Reasoning is carried into a confirmation produced downstream.
	Reasoning string
	// Suggestions are appended to the verdict's suggestions on confirmation.
	Suggestions []string
}

// Confidence returns the scored confidence of the submission.
func (s Submission) Confidence() float64 {
	return s.Info.ConfidenceValue()
}

// Strategy is one way of registering a submission.
type Strategy interface {
	Name() string
	CanHandle(info model.ExtractedInfo, verdict model.ValidationVerdict) bool
	Execute(ctx context.Context, sub Submission) (*model.RegistrationResult, error)
}

// Validator re-validates information after inferred values are applied.
type Validator interface {
	Validate(ctx context.Context, info model.ExtractedInfo) model.ValidationVerdict
}

// Thresholds gate the automatic strategies.
type Thresholds struct {
	AutoMinConfidence       float64
	ContextualMinConfidence float64
	AutoMaxMissing          int
	ContextualMaxMissing    int
}

// DefaultThresholds returns 0.8 and 0.4 confidence floors with at most one
// missing item for auto and two for contextual registration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoMinConfidence:       0.8,
		ContextualMinConfidence: 0.4,
		AutoMaxMissing:          1,
		ContextualMaxMissing:    2,
	}
}

// ThresholdsFromConfig converts strategy configuration, keeping defaults
// for unset values.
func ThresholdsFromConfig(c config.StrategyConfig) Thresholds {
	t := DefaultThresholds()
	if c.AutoMinConfidence > 0 {
		t.AutoMinConfidence = c.AutoMinConfidence
	}
	if c.ContextualMinConfidence > 0 {
		t.ContextualMinConfidence = c.ContextualMinConfidence
	}
	if c.AutoMaxMissing > 0 {
		t.AutoMaxMissing = c.AutoMaxMissing
	}
	if c.ContextualMaxMissing > 0 {
		t.ContextualMaxMissing = c.ContextualMaxMissing
	}
	return t
}

// Deps are the collaborators of the engine's strategies.
type Deps struct {
	Writer        store.WorkLogWriter
	History       store.HistoryReader
	Confirmations store.ConfirmationStore
	Validator     Validator
	Reasoning     reasoning.Service
	Builder       *confirm.Builder
	Now           func() time.Time
	// HistoryLimit caps the work logs fetched for context reasoning.
	// Values outside 1..reasoning.MaxHistory use reasoning.MaxHistory.
	HistoryLimit int
}

// Engine routes a submission to the first strategy that claims it.
type Engine struct {
	strategies   []Strategy
	persister    *Persister
	confirmation *Confirmation
}

// NewEngine wires the auto, contextual and confirmation strategies in that
// order.
func NewEngine(th Thresholds, d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Builder == nil {
		d.Builder = confirm.NewBuilder()
	}
	if d.HistoryLimit <= 0 || d.HistoryLimit > reasoning.MaxHistory {
		d.HistoryLimit = reasoning.MaxHistory
	}
	p := NewPersister(d.Writer, d.Now)
	c := &Confirmation{builder: d.Builder, store: d.Confirmations, now: d.Now}
	auto := &Auto{th: th, persister: p}
	ctxStrategy := &Contextual{
		th:           th,
		persister:    p,
		history:      d.History,
		historyLimit: d.HistoryLimit,
		reasoning:    d.Reasoning,
		validator:    d.Validator,
		confirmation: c,
	}
	return &Engine{
		strategies:   []Strategy{auto, ctxStrategy, c},
		persister:    p,
		confirmation: c,
	}
}

// Persister returns the engine's persister.
func (e *Engine) Persister() *Persister {
	return e.persister
}

// Confirm always produces a confirmation for sub.
func (e *Engine) Confirm(ctx context.Context, sub Submission) (*model.RegistrationResult, error) {
	return e.confirmation.Execute(ctx, sub)
}

// Route runs the first strategy whose CanHandle accepts sub. A failed write
// or unreadable date degrades to a confirmation. Only context errors are
// returned.
func (e *Engine) Route(ctx context.Context, sub Submission) (*model.RegistrationResult, error) {
	for _, s := range e.strategies {
		if !s.CanHandle(sub.Info, sub.Verdict) {
			continue
		}
		zap.L().Debug("strategy selected",
			zap.String("strategy", s.Name()),
			zap.Float64("confidence", sub.Confidence()),
			zap.Int("missing", len(sub.Verdict.Missing)),
			zap.Bool("valid", sub.Verdict.Valid),
		)
		res, err := s.Execute(ctx, sub)
		if err == nil {
			return res, nil
		}
		return e.degrade(ctx, sub, s.Name(), err)
	}

	zap.L().Warn("no strategy claimed submission, asking for confirmation",
		zap.String("submitter_id", sub.SubmitterID),
	)
	return e.confirmation.Execute(ctx, sub)
}

// degrade turns a commit failure into a confirmation.
func (e *Engine) degrade(ctx context.Context, sub Submission, name string, err error) (*model.RegistrationResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	switch {
	case errors.Is(err, ErrPersistence):
		sub.Suggestions = append(sub.Suggestions, "The record could not be saved. Please confirm to try again.")
	case errors.Is(err, ErrWorkDate):
		sub.Suggestions = append(sub.Suggestions, "The work date could not be read. Please enter it as YYYY-MM-DD.")
		sub.Verdict.Valid = false
	default:
		sub.Suggestions = append(sub.Suggestions, "The record could not be registered automatically.")
	}
	zap.L().Warn("strategy failed, asking for confirmation",
		zap.String("strategy", name),
		zap.Error(err),
	)
	return e.confirmation.Execute(ctx, sub)
}

// Auto registers complete, confident submissions directly.
type Auto struct {
	th        Thresholds
	persister *Persister
}

func (a *Auto) Name() string { return model.StrategyAuto }

// CanHandle accepts a valid verdict at or above the auto confidence floor
// with few missing items.
func (a *Auto) CanHandle(info model.ExtractedInfo, v model.ValidationVerdict) bool {
	return v.Valid && info.ConfidenceValue() >= a.th.AutoMinConfidence && len(v.Missing) <= a.th.AutoMaxMissing
}

func (a *Auto) Execute(ctx context.Context, sub Submission) (*model.RegistrationResult, error) {
	l, err := a.persister.Commit(ctx, sub, model.StrategyAuto)
	if err != nil {
		return nil, err
	}
	return committed(l, model.StrategyAuto, ""), nil
}

// Contextual consults the reasoning service for mid-confidence submissions
// with one or two gaps.
type Contextual struct {
	th           Thresholds
	persister    *Persister
	history      store.HistoryReader
	historyLimit int
	reasoning    reasoning.Service
	validator    Validator
	confirmation *Confirmation
}

func (c *Contextual) Name() string { return model.StrategyContextual }

// CanHandle accepts a valid verdict in the contextual confidence band with
// at least one missing item.
func (c *Contextual) CanHandle(info model.ExtractedInfo, v model.ValidationVerdict) bool {
	conf := info.ConfidenceValue()
	n := len(v.Missing)
	return v.Valid && conf >= c.th.ContextualMinConfidence && conf < c.th.AutoMinConfidence &&
		n >= 1 && n <= c.th.ContextualMaxMissing
}

func (c *Contextual) Execute(ctx context.Context, sub Submission) (*model.RegistrationResult, error) {
	if c.reasoning == nil {
		return c.confirmation.Execute(ctx, sub)
	}

	var history []model.WorkLog
	if c.history != nil {
		h, err := c.history.RecentWorkLogs(ctx, sub.SubmitterID, c.historyLimit)
		if err != nil {
			zap.L().Warn("history unavailable for context reasoning",
				zap.String("submitter_id", sub.SubmitterID),
				zap.Error(err),
			)
		} else {
			history = h
		}
	}

	analysis, err := c.reasoning.Analyze(ctx, reasoning.Request{
		Raw:     sub.Raw,
		Info:    sub.Info,
		Verdict: sub.Verdict,
		History: history,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		zap.L().Warn("context reasoning unavailable, asking for confirmation", zap.Error(err))
		return c.confirmation.Execute(ctx, sub)
	}

	sub.Reasoning = analysis.Reasoning
	if !analysis.Action.Commits() {
		return c.confirmation.Execute(ctx, sub)
	}

	if applyInferred(&sub.Info, analysis.Inferred) && c.validator != nil {
		sub.Verdict = c.validator.Validate(ctx, sub.Info)
	}
	if !sub.Verdict.Valid {
		return c.confirmation.Execute(ctx, sub)
	}

	l, err := c.persister.Commit(ctx, sub, model.StrategyContextual)
	if err != nil {
		return nil, err
	}
	return committed(l, model.StrategyContextual, analysis.Reasoning), nil
}

// applyInferred fills empty fields of info from inferred values. It reports
// whether a matched text field changed.
func applyInferred(info *model.ExtractedInfo, inferred map[string]string) (rematch bool) {
	fill := func(dst *string, key string) bool {
		v := inferred[key]
		if *dst != "" || v == "" {
			return false
		}
		*dst = v
		return true
	}
	fill(&info.WorkDate, "work_date")
	fill(&info.Unit, "unit")
	fill(&info.Notes, "notes")
	if info.WorkCategory == "" && inferred["work_category"] != "" {
		info.WorkCategory = model.WorkCategory(inferred["work_category"])
	}
	if fill(&info.FieldName, "field_name") {
		rematch = true
	}
	if fill(&info.CropName, "crop_name") {
		rematch = true
	}
	if len(info.Materials) == 0 && inferred["materials"] != "" {
		info.Materials = SplitList(inferred["materials"])
		rematch = len(info.Materials) > 0 || rematch
	}
	return rematch
}

// Confirmation asks the submitter. It never commits.
type Confirmation struct {
	builder *confirm.Builder
	store   store.ConfirmationStore
	now     func() time.Time
}

func (c *Confirmation) Name() string { return model.StrategyConfirmation }

// CanHandle accepts everything.
func (c *Confirmation) CanHandle(model.ExtractedInfo, model.ValidationVerdict) bool { return true }

func (c *Confirmation) Execute(ctx context.Context, sub Submission) (*model.RegistrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	verdict := sub.Verdict
	if len(sub.Suggestions) > 0 {
		verdict.Suggestions = append(append([]string{}, verdict.Suggestions...), sub.Suggestions...)
	}

	conf := c.builder.Build(sub.Info, verdict)
	conf.ID = newConfirmationID()
	conf.SubmitterID = sub.SubmitterID
	conf.RawMessage = sub.Raw
	conf.Reasoning = sub.Reasoning
	conf.CreatedAt = c.now().UTC()

	if c.store != nil {
		if err := c.store.SavePendingConfirmation(ctx, &conf); err != nil {
			zap.L().Warn("pending confirmation not saved",
				zap.String("confirmation_id", conf.ID),
				zap.Error(err),
			)
		}
	}

	return &model.RegistrationResult{
		Success:      false,
		Strategy:     model.StrategyConfirmation,
		Confirmation: &conf,
		Message:      conf.Message,
		Reasoning:    sub.Reasoning,
	}, nil
}

func committed(l *model.WorkLog, strategyName, reasoningText string) *model.RegistrationResult {
	return &model.RegistrationResult{
		Success:   true,
		LogID:     l.LogID,
		Strategy:  strategyName,
		Record:    l,
		Message:   "registered " + l.LogID,
		Reasoning: reasoningText,
	}
}

var (
	_ Strategy = (*Auto)(nil)
	_ Strategy = (*Contextual)(nil)
	_ Strategy = (*Confirmation)(nil)
)
