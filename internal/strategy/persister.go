package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/store"
)

var (
	// ErrPersistence wraps a failed work log write.
	ErrPersistence = eris.New("strategy: work log could not be saved")
	// ErrWorkDate marks a work date that could not be resolved to a day.
	ErrWorkDate = eris.New("strategy: work date could not be resolved")
)

// Persister turns a reconciled submission into a WorkLog and saves it.
type Persister struct {
	writer store.WorkLogWriter
	now    func() time.Time
	newID  func() string
}

// NewPersister creates a Persister. A nil now uses time.Now.
func NewPersister(writer store.WorkLogWriter, now func() time.Time) *Persister {
	if now == nil {
		now = time.Now
	}
	return &Persister{writer: writer, now: now, newID: uuid.NewString}
}

// NewLogID returns an id of the form LOG-YYYYMMDD-XXXXXXXX.
func NewLogID(now time.Time, id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return fmt.Sprintf("LOG-%s-%s", now.Format("20060102"), strings.ToUpper(hex))
}

// Commit builds and saves the work log for sub. A cancelled context is
// returned as is and nothing is written.
func (p *Persister) Commit(ctx context.Context, sub Submission, strategyName string) (*model.WorkLog, error) {
	l, err := p.Build(sub, strategyName)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.writer.SaveWorkLog(ctx, l); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		zap.L().Error("work log save failed",
			zap.String("log_id", l.LogID),
			zap.String("strategy", strategyName),
			zap.Error(err),
		)
		return nil, eris.Wrapf(ErrPersistence, "save %s: %v", l.LogID, err)
	}

	zap.L().Info("work log registered",
		zap.String("log_id", l.LogID),
		zap.String("submitter_id", l.SubmitterID),
		zap.String("strategy", strategyName),
		zap.Float64("confidence", l.Confidence),
	)
	return l, nil
}

// Build assembles the WorkLog without saving it.
func (p *Persister) Build(sub Submission, strategyName string) (*model.WorkLog, error) {
	now := p.now()
	info := sub.Info
	v := sub.Verdict

	workDate, err := ResolveWorkDate(info.WorkDate, now)
	if err != nil {
		return nil, eris.Wrapf(ErrWorkDate, "%v", err)
	}

	l := &model.WorkLog{
		LogID:       NewLogID(now, p.newID()),
		SubmitterID: sub.SubmitterID,
		WorkDate:    workDate,
		Quantity:    info.Quantity,
		Unit:        strings.TrimSpace(info.Unit),
		WorkCount:   info.WorkCount,
		Notes:       strings.TrimSpace(info.Notes),
		Status:      model.WorkLogStatusConfirmed,
		Strategy:    strategyName,
		Confidence:  info.ConfidenceValue(),
		RawMessage:  sub.Raw,
		CreatedAt:   now.UTC(),
	}

	switch c := info.WorkCategory.Canonical(); {
	case c != "":
		l.WorkCategory = c
	case strings.TrimSpace(string(info.WorkCategory)) != "":
		l.WorkCategory = model.CategoryOther
	}

	l.FieldID, l.FieldName = resolved(v.Field, info.FieldName, v.Threshold)
	l.CropID, l.CropName = resolved(v.Crop, info.CropName, v.Threshold)
	for _, m := range v.Materials {
		id, name := resolved(&m.Result, m.Input, v.Threshold)
		l.Materials = append(l.Materials, model.ResolvedMaterial{ID: id, Name: name, Input: m.Input})
	}

	if l.WorkCategory != "" {
		l.Tags = append(l.Tags, string(l.WorkCategory))
	}
	l.Tags = append(l.Tags, strategyName)
	return l, nil
}

// resolved returns the matched record, or no id and the written text when
// the match is not trusted.
func resolved(r *model.MatchResult, input string, threshold float64) (id, name string) {
	if r.Resolved(threshold) {
		return r.Best.ID, r.Best.Name
	}
	return "", strings.TrimSpace(input)
}

var newConfirmationID = uuid.NewString

var listSplitRe = regexp.MustCompile(`\s*[,、，;]\s*`)

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, p := range listSplitRe.Split(strings.TrimSpace(s), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
