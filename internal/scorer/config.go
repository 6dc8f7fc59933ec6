// Package scorer maps an extracted work report to a 0-1 confidence score.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with the stock weights.
// Weights sum to 1.0.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		DateWeight:        0.15,
		FieldWeight:       0.20,
		CropWeight:        0.15,
		CategoryWeight:    0.15,
		MaterialsWeight:   0.20,
		QuantityWeight:    0.10,
		SpecificityWeight: 0.05,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.DateWeight + c.FieldWeight + c.CropWeight + c.CategoryWeight +
		c.MaterialsWeight + c.QuantityWeight + c.SpecificityWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	weights := map[string]float64{
		"date_weight":        c.DateWeight,
		"field_weight":       c.FieldWeight,
		"crop_weight":        c.CropWeight,
		"category_weight":    c.CategoryWeight,
		"materials_weight":   c.MaterialsWeight,
		"quantity_weight":    c.QuantityWeight,
		"specificity_weight": c.SpecificityWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
