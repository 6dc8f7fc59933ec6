package model

// MatchMethod records which matcher stage produced a match.
type MatchMethod string

const (
	MethodExact   MatchMethod = "exact"
	MethodPartial MatchMethod = "partial"
	MethodFuzzy   MatchMethod = "fuzzy"
	MethodPinned  MatchMethod = "pinned"
)

// Quality is the confidence band of a match.
type Quality string

const (
	QualityExact   Quality = "exact"
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
	QualityNoMatch Quality = "no_match"
)

// Match is one reference record matched against an input token.
type Match struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
}

// MatchResult is the outcome of matching one input token against one
// reference dataset.
type MatchResult struct {
	Input      string  `json:"input"`
	Best       *Match  `json:"best,omitempty"`
	Candidates []Match `json:"candidates"`
	Ambiguous  bool    `json:"ambiguous"`
	Quality    Quality `json:"quality"`
	// Err is set when the dataset could not be read.
	Err string `json:"error,omitempty"`
}

// NoMatch returns an empty result for input.
func NoMatch(input string) MatchResult {
	return MatchResult{Input: input, Candidates: []Match{}, Quality: QualityNoMatch}
}

// Resolved reports whether the result names a single trusted record.
func (r *MatchResult) Resolved(threshold float64) bool {
	return r != nil && r.Best != nil && !r.Ambiguous && r.Best.Confidence >= threshold
}

// Pin forces the best match to the candidate with id. It reports false when
// id is not among the candidates.
func (r *MatchResult) Pin(id, name string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Candidates {
		if c.ID == id {
			r.Best = &Match{ID: c.ID, Name: c.Name, Confidence: 1.0, Method: MethodPinned}
			r.Ambiguous = false
			r.Quality = QualityExact
			return true
		}
	}
	if r.Best != nil && r.Best.ID == id {
		r.Best.Confidence = 1.0
		r.Best.Method = MethodPinned
		r.Ambiguous = false
		r.Quality = QualityExact
		return true
	}
	if name == "" {
		return false
	}
	r.Best = &Match{ID: id, Name: name, Confidence: 1.0, Method: MethodPinned}
	r.Candidates = append([]Match{*r.Best}, r.Candidates...)
	r.Ambiguous = false
	r.Quality = QualityExact
	return true
}

// MaterialMatch pairs a material input with its match result.
type MaterialMatch struct {
	Input  string      `json:"input"`
	Result MatchResult `json:"result"`
}

// MissingItem names a piece of information a record still needs.
type MissingItem string

const (
	MissingWorkDate     MissingItem = "work_date"
	MissingFieldName    MissingItem = "field_name"
	MissingWorkCategory MissingItem = "work_category"
	MissingMaterials    MissingItem = "materials"
	MissingQuantity     MissingItem = "quantity"
)

// ValidationVerdict aggregates the match results for one ExtractedInfo.
type ValidationVerdict struct {
	Field        *MatchResult    `json:"field,omitempty"`
	Crop         *MatchResult    `json:"crop,omitempty"`
	Materials    []MaterialMatch `json:"materials,omitempty"`
	Valid        bool            `json:"valid"`
	Missing      []MissingItem   `json:"missing"`
	Suggestions  []string        `json:"suggestions"`
	QualityScore float64         `json:"quality_score"`
	// Threshold is the confidence a best match needs to count as resolved.
	Threshold float64 `json:"threshold"`
}

// FieldResolved reports whether the field matched a single trusted record.
func (v *ValidationVerdict) FieldResolved() bool {
	return v.Field.Resolved(v.Threshold)
}

// CropResolved reports whether the crop matched a single trusted record.
func (v *ValidationVerdict) CropResolved() bool {
	return v.Crop.Resolved(v.Threshold)
}

// ResolvedMaterials returns the material matches that resolved.
func (v *ValidationVerdict) ResolvedMaterials() []MaterialMatch {
	var out []MaterialMatch
	for _, m := range v.Materials {
		if m.Result.Resolved(v.Threshold) {
			out = append(out, m)
		}
	}
	return out
}

// AnyResolved reports whether at least one entity kind resolved.
func (v *ValidationVerdict) AnyResolved() bool {
	return v.FieldResolved() || v.CropResolved() || len(v.ResolvedMaterials()) > 0
}

// HasMissing reports whether item is listed as missing.
func (v *ValidationVerdict) HasMissing(item MissingItem) bool {
	for _, m := range v.Missing {
		if m == item {
			return true
		}
	}
	return false
}
