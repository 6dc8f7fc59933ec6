package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/normalize"
)

// Thresholds configures the matcher's quality bands and ambiguity margin.
type Thresholds struct {
	High            float64 `yaml:"high" mapstructure:"high"`
	Medium          float64 `yaml:"medium" mapstructure:"medium"`
	Low             float64 `yaml:"low" mapstructure:"low"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	PartialCap      float64 `yaml:"partial_cap" mapstructure:"partial_cap"`
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// DefaultThresholds returns the stock bands: 0.8 high, 0.6 medium, 0.4 low,
// a 0.1 ambiguity margin and at most 3 candidates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		High:            0.8,
		Medium:          0.6,
		Low:             0.4,
		AmbiguityMargin: 0.1,
		PartialCap:      0.8,
		MaxCandidates:   3,
	}
}

// withDefaults fills zero values from DefaultThresholds.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.High <= 0 {
		t.High = d.High
	}
	if t.Medium <= 0 {
		t.Medium = d.Medium
	}
	if t.Low <= 0 {
		t.Low = d.Low
	}
	if t.AmbiguityMargin <= 0 {
		t.AmbiguityMargin = d.AmbiguityMargin
	}
	if t.PartialCap <= 0 {
		t.PartialCap = d.PartialCap
	}
	if t.MaxCandidates <= 0 {
		t.MaxCandidates = d.MaxCandidates
	}
	return t
}

// minCappedFieldInput is the shortest input, in runes, allowed to match a
// secondary name field (brand, ingredient) by containment.
const minCappedFieldInput = 3

// Matcher runs the staged exact, partial and fuzzy match. It holds no
// mutable state and is safe for concurrent use.
type Matcher struct {
	th Thresholds
}

// NewMatcher creates a Matcher. Zero-valued thresholds take their defaults.
func NewMatcher(th Thresholds) *Matcher {
	return &Matcher{th: th.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (m *Matcher) Thresholds() Thresholds {
	return m.th
}

type scored struct {
	ref    model.Reference
	score  float64
	method model.MatchMethod
	order  int
}

// Match reconciles input against refs. Empty input or an empty candidate
// list yields a no-match result.
func (m *Matcher) Match(input string, refs []model.Reference) model.MatchResult {
	res := model.NoMatch(input)

	norm := normalize.Text(input)
	if norm == "" || len(refs) == 0 {
		return res
	}

	// Normalize every name field once.
	fields := make([][]normField, len(refs))
	for i, ref := range refs {
		fields[i] = normFields(ref)
	}

	// Stage 1: exact. Short-circuits on the first hit.
	for i, ref := range refs {
		for _, f := range fields[i] {
			if f.value == norm {
				best := model.Match{
					ID:         ref.RefID(),
					Name:       ref.DisplayName(),
					Confidence: 1.0,
					Method:     model.MethodExact,
				}
				res.Best = &best
				res.Candidates = []model.Match{best}
				res.Quality = model.QualityExact
				return res
			}
		}
	}

	inputLen := utf8.RuneCountInString(norm)
	var kept []scored
	partialHit := make([]bool, len(refs))

	// Stage 2: partial containment.
	for i, ref := range refs {
		best := 0.0
		for _, f := range fields[i] {
			if f.partial > 0 && inputLen < minCappedFieldInput {
				continue
			}
			if !containsEither(norm, f.value) {
				continue
			}
			s := lengthRatio(norm, f.value)
			if f.partial > 0 && s > f.partial {
				s = f.partial
			}
			if s > m.th.PartialCap {
				s = m.th.PartialCap
			}
			if s > best {
				best = s
			}
		}
		if best >= m.th.Low {
			partialHit[i] = true
			kept = append(kept, scored{ref: ref, score: best, method: model.MethodPartial, order: i})
		}
	}

	// Stage 3: fuzzy, for candidates the partial stage did not keep.
	for i, ref := range refs {
		if partialHit[i] {
			continue
		}
		best := 0.0
		for _, f := range fields[i] {
			if s := Similarity(norm, f.value); s > best {
				best = s
			}
		}
		if best >= m.th.Low {
			kept = append(kept, scored{ref: ref, score: best, method: model.MethodFuzzy, order: i})
		}
	}

	if len(kept) == 0 {
		return res
	}

	// Stage 4: merge, rank and band.
	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].score != kept[b].score {
			return kept[a].score > kept[b].score
		}
		return kept[a].order < kept[b].order
	})
	if len(kept) > m.th.MaxCandidates {
		kept = kept[:m.th.MaxCandidates]
	}

	res.Candidates = make([]model.Match, len(kept))
	for i, k := range kept {
		res.Candidates[i] = model.Match{
			ID:         k.ref.RefID(),
			Name:       k.ref.DisplayName(),
			Confidence: k.score,
			Method:     k.method,
		}
	}
	best := res.Candidates[0]
	res.Best = &best
	res.Ambiguous = len(res.Candidates) >= 2 &&
		res.Candidates[0].Confidence-res.Candidates[1].Confidence < m.th.AmbiguityMargin
	res.Quality = m.Quality(best.Confidence)
	return res
}

// Quality bands a confidence value.
func (m *Matcher) Quality(c float64) model.Quality {
	switch {
	case c >= 1.0:
		return model.QualityExact
	case c >= m.th.High:
		return model.QualityHigh
	case c >= m.th.Medium:
		return model.QualityMedium
	case c >= m.th.Low:
		return model.QualityLow
	default:
		return model.QualityNoMatch
	}
}

type normField struct {
	value   string
	partial float64
}

func normFields(ref model.Reference) []normField {
	raw := ref.NameFields()
	out := make([]normField, 0, len(raw))
	for _, f := range raw {
		v := normalize.Text(f.Value)
		if v == "" {
			continue
		}
		out = append(out, normField{value: v, partial: f.Partial})
	}
	return out
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
