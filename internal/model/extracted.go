package model

import "strings"

// WorkCategory is the closed set of farm activity kinds.
type WorkCategory string

const (
	CategoryPrevention    WorkCategory = "prevention"
	CategoryFertilization WorkCategory = "fertilization"
	CategoryCultivation   WorkCategory = "cultivation"
	CategoryHarvest       WorkCategory = "harvest"
	CategoryMaintenance   WorkCategory = "maintenance"
	CategoryOther         WorkCategory = "other"
)

// Extraction sources.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceManual   = "manual"
)

// AllCategories lists the canonical categories in display order.
var AllCategories = []WorkCategory{
	CategoryPrevention,
	CategoryFertilization,
	CategoryCultivation,
	CategoryHarvest,
	CategoryMaintenance,
	CategoryOther,
}

// categoryAliases maps lower-cased labels (English and Japanese) to categories.
var categoryAliases = map[string]WorkCategory{
	"prevention":    CategoryPrevention,
	"pest_control":  CategoryPrevention,
	"pest control":  CategoryPrevention,
	"spraying":      CategoryPrevention,
	"防除":            CategoryPrevention,
	"fertilization": CategoryFertilization,
	"fertilizing":   CategoryFertilization,
	"fertilisation": CategoryFertilization,
	"施肥":            CategoryFertilization,
	"追肥":            CategoryFertilization,
	"cultivation":   CategoryCultivation,
	"planting":      CategoryCultivation,
	"sowing":        CategoryCultivation,
	"栽培":            CategoryCultivation,
	"定植":            CategoryCultivation,
	"播種":            CategoryCultivation,
	"管理作業":          CategoryCultivation,
	"harvest":       CategoryHarvest,
	"harvesting":    CategoryHarvest,
	"収穫":            CategoryHarvest,
	"maintenance":   CategoryMaintenance,
	"repair":        CategoryMaintenance,
	"整備":            CategoryMaintenance,
	"保守":            CategoryMaintenance,
	"メンテナンス":        CategoryMaintenance,
	"other":         CategoryOther,
	"その他":           CategoryOther,
}

// ParseWorkCategory maps a label to a WorkCategory. It returns "" when the
// label is not recognized.
func ParseWorkCategory(s string) WorkCategory {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	return categoryAliases[key]
}

// Valid reports whether c is one of the canonical categories.
func (c WorkCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Canonical resolves c to a canonical category, or "" when it is not
// recognized.
func (c WorkCategory) Canonical() WorkCategory {
	if c.Valid() {
		return c
	}
	return ParseWorkCategory(string(c))
}

// ExtractedInfo is the structured candidate data derived from one free-text
// submission, prior to reconciliation.
type ExtractedInfo struct {
	WorkDate     string       `json:"work_date,omitempty" yaml:"work_date,omitempty"`
	FieldName    string       `json:"field_name,omitempty" yaml:"field_name,omitempty"`
	CropName     string       `json:"crop_name,omitempty" yaml:"crop_name,omitempty"`
	WorkCategory WorkCategory `json:"work_category,omitempty" yaml:"work_category,omitempty"`
	Materials    []string     `json:"materials,omitempty" yaml:"materials,omitempty"`
	Quantity     *float64     `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Unit         string       `json:"unit,omitempty" yaml:"unit,omitempty"`
	WorkCount    *int         `json:"work_count,omitempty" yaml:"work_count,omitempty"`
	Notes        string       `json:"notes,omitempty" yaml:"notes,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Source       string       `json:"source,omitempty" yaml:"source,omitempty"`
}

// SetConfidence stores c clamped to [0,1].
func (e *ExtractedInfo) SetConfidence(c float64) {
	switch {
	case c < 0:
		c = 0
	case c > 1:
		c = 1
	}
	e.Confidence = &c
}

// ConfidenceValue returns the confidence or 0 when unscored.
func (e *ExtractedInfo) ConfidenceValue() float64 {
	if e == nil || e.Confidence == nil {
		return 0
	}
	return *e.Confidence
}

// IsEmpty reports whether no field carries a value.
func (e *ExtractedInfo) IsEmpty() bool {
	return e.WorkDate == "" && e.FieldName == "" && e.CropName == "" &&
		e.WorkCategory == "" && len(e.Materials) == 0 && e.Quantity == nil &&
		e.Unit == "" && e.WorkCount == nil && e.Notes == ""
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (e ExtractedInfo) Clone() ExtractedInfo {
	out := e
	if e.Materials != nil {
		out.Materials = append([]string(nil), e.Materials...)
	}
	if e.Quantity != nil {
		q := *e.Quantity
		out.Quantity = &q
	}
	if e.WorkCount != nil {
		n := *e.WorkCount
		out.WorkCount = &n
	}
	if e.Confidence != nil {
		c := *e.Confidence
		out.Confidence = &c
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
