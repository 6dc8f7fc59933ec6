package scorer

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/config"
	"github.com/sells-group/worklog-cli/internal/model"
)

// Breakdown holds the per-component evaluator values, each in [0,1].
type Breakdown struct {
	Date        float64 `json:"date"`
	Field       float64 `json:"field"`
	Crop        float64 `json:"crop"`
	Category    float64 `json:"category"`
	Materials   float64 `json:"materials"`
	Quantity    float64 `json:"quantity"`
	Specificity float64 `json:"specificity"`
}

// Scorer computes a weighted confidence over seven independent evaluators.
// It is stateless and safe for concurrent use.
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a Scorer. A config whose weights are all zero falls back to
// DefaultScorerConfig.
func New(cfg config.ScorerConfig) *Scorer {
	if WeightSum(cfg) == 0 {
		cfg = DefaultScorerConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score returns the confidence for info, clamped to [0,1]. On any evaluator
// failure it returns 0 and the error; logging is left to the caller.
func (s *Scorer) Score(info *model.ExtractedInfo) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = eris.Errorf("scorer: evaluator panic: %v", r)
		}
	}()

	if info == nil {
		return 0, eris.New("scorer: nil extracted info")
	}

	b, err := s.Breakdown(*info)
	if err != nil {
		return 0, err
	}

	total := b.Date*s.cfg.DateWeight +
		b.Field*s.cfg.FieldWeight +
		b.Crop*s.cfg.CropWeight +
		b.Category*s.cfg.CategoryWeight +
		b.Materials*s.cfg.MaterialsWeight +
		b.Quantity*s.cfg.QuantityWeight +
		b.Specificity*s.cfg.SpecificityWeight

	if math.IsNaN(total) {
		return 0, eris.New("scorer: weighted sum is NaN")
	}
	return math.Min(1, math.Max(0, total)), nil
}

// Breakdown runs every evaluator without weighting.
func (s *Scorer) Breakdown(info model.ExtractedInfo) (Breakdown, error) {
	qty, err := evalQuantity(info)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Date:        evalDate(info),
		Field:       evalField(info),
		Crop:        evalCrop(info),
		Category:    evalCategory(info),
		Materials:   evalMaterials(info),
		Quantity:    qty,
		Specificity: evalSpecificity(info),
	}, nil
}
