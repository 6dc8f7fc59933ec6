// Package validate reconciles extracted names against the reference data
// and decides whether a record is complete enough to commit.
package validate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/match"
	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/refdata"
)

// Policy sets which resolved entities make a verdict valid.
type Policy struct {
	// RequireField demands a resolved field regardless of other entities.
	RequireField bool
	// AllowCropMaterial accepts a resolved crop plus at least one resolved
	// material in place of a field.
	AllowCropMaterial bool
	// ResolveThreshold is the confidence a best match needs. Zero uses the
	// matcher's high band.
	ResolveThreshold float64
}

// DefaultPolicy accepts a resolved field, or a resolved crop with a
// resolved material.
func DefaultPolicy() Policy {
	return Policy{AllowCropMaterial: true}
}

// PolicyFromConfig converts validator configuration to a Policy.
func PolicyFromConfig(c config.ValidatorConfig) Policy {
	return Policy{
		RequireField:      c.RequireField,
		AllowCropMaterial: c.AllowCropMaterial,
		ResolveThreshold:  c.ResolveThreshold,
	}
}

// Validator builds a ValidationVerdict for extracted information.
type Validator struct {
	refs    refdata.Gateway
	matcher *match.Matcher
	policy  Policy
}

// New creates a Validator.
func New(refs refdata.Gateway, matcher *match.Matcher, policy Policy) *Validator {
	if policy.ResolveThreshold <= 0 {
		policy.ResolveThreshold = matcher.Thresholds().High
	}
	return &Validator{refs: refs, matcher: matcher, policy: policy}
}

// Policy returns the effective policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate matches the field, crop and materials of info concurrently and
// aggregates the results. Reference data failures are reported in the
// verdict, never as an error.
func (v *Validator) Validate(ctx context.Context, info model.ExtractedInfo) model.ValidationVerdict {
	var verdict model.ValidationVerdict

	fieldInput := strings.TrimSpace(info.FieldName)
	cropInput := strings.TrimSpace(info.CropName)
	var materialInputs []string
	for _, m := range info.Materials {
		if m = strings.TrimSpace(m); m != "" {
			materialInputs = append(materialInputs, m)
		}
	}

	var (
		field, crop *model.MatchResult
		materials   []model.MaterialMatch
	)

	// Each lookup records its own failure and returns nil so that one
	// failing kind never cancels the others.
	g, gctx := errgroup.WithContext(ctx)
	if fieldInput != "" {
		g.Go(func() error {
			field = v.lookup(gctx, model.KindField, fieldInput, v.refs.Fields)
			return nil
		})
	}
	if cropInput != "" {
		g.Go(func() error {
			crop = v.lookup(gctx, model.KindCrop, cropInput, v.refs.Crops)
			return nil
		})
	}
	if len(materialInputs) > 0 {
		g.Go(func() error {
			materials = v.lookupMaterials(gctx, materialInputs)
			return nil
		})
	}
	_ = g.Wait()

	verdict.Field = field
	verdict.Crop = crop
	verdict.Materials = materials
	v.Assess(info, &verdict)
	return verdict
}

// Assess recomputes the derived parts of verdict from its match results:
// missing items, suggestions, validity and quality score. Callers that pin
// a match after validation use it to refresh the verdict.
func (v *Validator) Assess(info model.ExtractedInfo, verdict *model.ValidationVerdict) {
	verdict.Threshold = v.policy.ResolveThreshold
	verdict.Missing = v.missing(info, verdict)
	verdict.Suggestions = suggestions(verdict)
	verdict.Valid = v.valid(verdict)
	verdict.QualityScore = qualityScore(verdict)
}

func (v *Validator) lookup(ctx context.Context, kind model.EntityKind, input string, list func(context.Context) ([]model.Reference, error)) *model.MatchResult {
	refs, err := list(ctx)
	if err != nil {
		zap.L().Warn("reference lookup failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		res := model.NoMatch(input)
		res.Err = err.Error()
		return &res
	}
	res := v.matcher.Match(input, refs)
	return &res
}

func (v *Validator) lookupMaterials(ctx context.Context, inputs []string) []model.MaterialMatch {
	out := make([]model.MaterialMatch, len(inputs))
	refs, err := v.refs.Materials(ctx)
	if err != nil {
		zap.L().Warn("reference lookup failed",
			zap.String("kind", string(model.KindMaterial)),
			zap.Error(err),
		)
	}
	for i, in := range inputs {
		out[i] = model.MaterialMatch{Input: in}
		if err != nil {
			out[i].Result = model.NoMatch(in)
			out[i].Result.Err = err.Error()
			continue
		}
		out[i].Result = v.matcher.Match(in, refs)
	}
	return out
}

func (v *Validator) missing(info model.ExtractedInfo, verdict *model.ValidationVerdict) []model.MissingItem {
	out := []model.MissingItem{}
	if strings.TrimSpace(info.WorkDate) == "" {
		out = append(out, model.MissingWorkDate)
	}
	if !verdict.FieldResolved() {
		out = append(out, model.MissingFieldName)
	}
	category := info.WorkCategory.Canonical()
	if strings.TrimSpace(string(info.WorkCategory)) == "" {
		out = append(out, model.MissingWorkCategory)
	}
	if (category == model.CategoryPrevention || category == model.CategoryFertilization) &&
		len(verdict.ResolvedMaterials()) == 0 {
		out = append(out, model.MissingMaterials)
	}
	if category == model.CategoryHarvest && info.Quantity == nil {
		out = append(out, model.MissingQuantity)
	}
	return out
}

func (v *Validator) valid(verdict *model.ValidationVerdict) bool {
	if verdict.FieldResolved() {
		return true
	}
	if v.policy.RequireField || !v.policy.AllowCropMaterial {
		return false
	}
	return verdict.CropResolved() && len(verdict.ResolvedMaterials()) > 0
}

func suggestions(verdict *model.ValidationVerdict) []string {
	out := []string{}
	add := func(label string, r *model.MatchResult) {
		if r == nil {
			return
		}
		switch {
		case r.Err != "":
			out = append(out, fmt.Sprintf("%s reference data is unavailable: %s", label, r.Err))
		case r.Ambiguous && len(r.Candidates) >= 2:
			out = append(out, fmt.Sprintf("%s %q is ambiguous: did you mean %q or %q?",
				label, r.Input, r.Candidates[0].Name, r.Candidates[1].Name))
		case r.Best != nil && r.Best.Method == model.MethodPartial:
			out = append(out, fmt.Sprintf("%s %q partially matched %q: please confirm",
				label, r.Input, r.Best.Name))
		}
	}
	add("field", verdict.Field)
	add("crop", verdict.Crop)

	reportedFailure := false
	for i := range verdict.Materials {
		r := &verdict.Materials[i].Result
		if r.Err != "" {
			if reportedFailure {
				continue
			}
			reportedFailure = true
		}
		add("material", r)
	}
	return out
}

func qualityScore(verdict *model.ValidationVerdict) float64 {
	var sum float64
	var n int
	take := func(r *model.MatchResult) {
		if r != nil && r.Best != nil {
			sum += r.Best.Confidence
			n++
		}
	}
	take(verdict.Field)
	take(verdict.Crop)
	for i := range verdict.Materials {
		take(&verdict.Materials[i].Result)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
