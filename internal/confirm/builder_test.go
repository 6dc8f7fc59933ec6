package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/worklog-cli/internal/model"
)

func exact(input, id, name string) *model.MatchResult {
	m := model.Match{ID: id, Name: name, Confidence: 1, Method: model.MethodExact}
	return &model.MatchResult{Input: input, Best: &m, Candidates: []model.Match{m}, Quality: model.QualityExact}
}

func actions(opts []model.Option) []model.OptionAction {
	out := make([]model.OptionAction, len(opts))
	for i, o := range opts {
		out[i] = o.Action
	}
	return out
}

func TestBuild_Valid(t *testing.T) {
	info := model.ExtractedInfo{
		WorkDate:     "yesterday",
		FieldName:    "greenhouse 1",
		WorkCategory: "防除",
		Materials:    []string{"fungicide x"},
		Quantity:     model.Float(500),
		Unit:         "ml",
		Notes:        "light rain",
	}
	info.SetConfidence(0.7)
	verdict := model.ValidationVerdict{
		Valid:     true,
		Threshold: 0.8,
		Field:     exact("greenhouse 1", "f1", "Greenhouse-1"),
		Materials: []model.MaterialMatch{{Input: "fungicide x", Result: *exact("fungicide x", "m1", "Fungicide-X")}},
	}

	c := NewBuilder().Build(info, verdict)

	assert.Equal(t, []model.OptionAction{model.ActionConfirm, model.ActionModify, model.ActionCancel}, actions(c.Options))
	assert.Equal(t, "1", c.Options[0].ID)
	assert.Equal(t, "3", c.Options[2].ID)
	for _, want := range []string{"Date: yesterday", "Field: Greenhouse-1", "Category: prevention", "Materials: Fungicide-X", "Quantity: 500 ml", "Notes: light rain", "Confidence: 70%"} {
		assert.Contains(t, c.Message, want)
	}
	assert.Empty(t, c.ID)
	assert.True(t, c.CreatedAt.IsZero())
}

// A near-miss field becomes a selectable option.
func TestBuild_NearMatchField(t *testing.T) {
	near := model.Match{ID: "f1", Name: "greenhouse-1", Confidence: 0.7, Method: model.MethodFuzzy}
	verdict := model.ValidationVerdict{
		Threshold: 0.8,
		Field:     &model.MatchResult{Input: "grenhouse-1", Best: &near, Candidates: []model.Match{near}, Quality: model.QualityMedium},
		Missing:   []model.MissingItem{model.MissingWorkDate, model.MissingFieldName, model.MissingWorkCategory},
	}

	c := NewBuilder().Build(model.ExtractedInfo{FieldName: "grenhouse-1"}, verdict)

	require.GreaterOrEqual(t, len(c.Options), 4)
	sel := c.Options[0]
	assert.Equal(t, model.ActionSelectField, sel.Action)
	assert.Equal(t, model.KindField, sel.Kind)
	assert.Equal(t, "f1", sel.RefID)
	assert.Equal(t, "greenhouse-1", sel.RefName)
	assert.Contains(t, sel.Label, "70%")

	assert.Equal(t, []model.OptionAction{model.ActionSelectField, model.ActionManualInput, model.ActionProceedAnyway, model.ActionCancel}, actions(c.Options))
	assert.Contains(t, c.Message, `Field "grenhouse-1"`)
	assert.Contains(t, c.Message, "- work date")
	assert.Contains(t, c.Message, "- work category")
}

func TestBuild_AmbiguousCandidatesCapped(t *testing.T) {
	cands := []model.Match{
		{ID: "f1", Name: "House 1", Confidence: 0.8},
		{ID: "f2", Name: "House 2", Confidence: 0.8},
		{ID: "f3", Name: "House 3", Confidence: 0.78},
		{ID: "f4", Name: "House 4", Confidence: 0.75},
	}
	verdict := model.ValidationVerdict{
		Threshold:   0.8,
		Field:       &model.MatchResult{Input: "house", Best: &cands[0], Candidates: cands, Ambiguous: true},
		Suggestions: []string{`field "house" is ambiguous`},
	}

	c := NewBuilder().Build(model.ExtractedInfo{FieldName: "house"}, verdict)

	var selects int
	for _, o := range c.Options {
		if o.Action == model.ActionSelectField {
			selects++
		}
	}
	assert.Equal(t, 3, selects)
	assert.Contains(t, c.Message, "more than one record")
	assert.Contains(t, c.Message, `field "house" is ambiguous`)
}

func TestBuild_MaterialBlocks(t *testing.T) {
	cand := func(id string) model.MatchResult {
		m := model.Match{ID: id, Name: "Mat " + id, Confidence: 0.6}
		return model.MatchResult{Best: &m, Candidates: []model.Match{m}, Quality: model.QualityMedium}
	}
	verdict := model.ValidationVerdict{
		Threshold: 0.8,
		Field:     exact("f", "f1", "Field 1"),
		Materials: []model.MaterialMatch{
			{Input: "a", Result: cand("m1")},
			{Input: "b", Result: *exact("b", "m2", "Mat m2")},
			{Input: "c", Result: cand("m3")},
		},
	}

	c := NewBuilder().Build(model.ExtractedInfo{}, verdict)

	var mats []model.Option
	for _, o := range c.Options {
		if o.Action == model.ActionSelectMaterial {
			mats = append(mats, o)
		}
	}
	// Only the first two inputs get blocks, and the resolved one needs none.
	require.Len(t, mats, 1)
	assert.Equal(t, "m1", mats[0].RefID)
	assert.Equal(t, 0, mats[0].MaterialIndex)
	assert.NotContains(t, c.Message, `"c"`)
}

func TestBuild_FailedLookupHasNoOptions(t *testing.T) {
	failed := model.NoMatch("fungicide-X")
	failed.Err = "refdata: reference data unavailable"
	verdict := model.ValidationVerdict{
		Threshold: 0.8,
		Materials: []model.MaterialMatch{{Input: "fungicide-X", Result: failed}},
	}

	c := NewBuilder().Build(model.ExtractedInfo{}, verdict)

	assert.Equal(t, []model.OptionAction{model.ActionManualInput, model.ActionProceedAnyway, model.ActionCancel}, actions(c.Options))
	assert.Contains(t, c.Message, "unavailable")
}

func TestBuild_OptionIDsUnique(t *testing.T) {
	near := model.Match{ID: "c1", Name: "Tomato", Confidence: 0.65}
	verdict := model.ValidationVerdict{
		Threshold: 0.8,
		Crop:      &model.MatchResult{Input: "tomat", Best: &near, Candidates: []model.Match{near}},
	}
	c := NewBuilder().Build(model.ExtractedInfo{}, verdict)

	seen := map[string]bool{}
	for _, o := range c.Options {
		assert.False(t, seen[o.ID], o.ID)
		seen[o.ID] = true
	}
	assert.Len(t, seen, 4)
}
