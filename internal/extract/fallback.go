package extract

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/resilience"
)

// DefaultFallbackMaxConfidence caps the confidence of heuristic results.
const DefaultFallbackMaxConfidence = 0.3

var (
	absoluteDateRe = regexp.MustCompile(`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{4}年\d{1,2}月\d{1,2}日|\d{1,2}月\d{1,2}日`)

	// Longer expressions come first so 一昨日 is not read as 昨日.
	relativeDateRes = []*regexp.Regexp{
		regexp.MustCompile(`一昨日|おととい`),
		regexp.MustCompile(`昨日|きのう`),
		regexp.MustCompile(`今日|本日|きょう`),
		regexp.MustCompile(`\d+日前`),
		regexp.MustCompile(`(?i)(?:the )?day before yesterday`),
		regexp.MustCompile(`(?i)\byesterday\b`),
		regexp.MustCompile(`(?i)\btoday\b`),
		regexp.MustCompile(`(?i)\b\d+ days? ago\b`),
	}

	fieldRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:greenhouse|field|house|plot)[-_ ]?\d+\b`),
		regexp.MustCompile(`\b[A-Za-z]{1,3}-\d+\b`),
		regexp.MustCompile(`ハウス\s*\d+号?`),
		regexp.MustCompile(`第?\d+番?圃場`),
		regexp.MustCompile(`[\p{Han}\p{Katakana}ー]+(?:圃場|畑|ハウス)`),
	}

	quantityRe  = regexp.MustCompile(`(?i)((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)\s*(?:(ml|cc|kg|g|l|liters?|litres?|bags?|bottles?|units?)\b|(リットル|袋|本|箱|個|倍|ケース))`)
	workCountRe = regexp.MustCompile(`(\d+)\s*回`)

	agentRe      = regexp.MustCompile(`[\p{Han}\p{Katakana}ーA-Za-z0-9-]+剤`)
	jpAppliedRe  = regexp.MustCompile(`([\p{Katakana}ーA-Za-z0-9-]+)を(?:散布|施用|使用|施肥)`)
	enAppliedRe  = regexp.MustCompile(`(?i)\b(?:applied|sprayed|spread)\s+([A-Za-z][\w-]*)`)
	enStopwords  = map[string]bool{"the": true, "a": true, "an": true, "some": true, "on": true, "in": true, "to": true}
	categoryKeys = []struct {
		category model.WorkCategory
		words    []string
	}{
		{model.CategoryPrevention, []string{"防除", "農薬", "散布", "殺菌", "殺虫", "spray", "pesticide", "fungicide", "insecticide"}},
		{model.CategoryFertilization, []string{"施肥", "肥料", "追肥", "元肥", "fertiliz", "fertilis", "manure"}},
		{model.CategoryHarvest, []string{"収穫", "出荷", "harvest", "picked"}},
		{model.CategoryCultivation, []string{"播種", "定植", "摘心", "誘引", "planted", "sowing", "seeded", "transplant", "pruned"}},
		{model.CategoryMaintenance, []string{"草刈り", "清掃", "点検", "修理", "mowing", "cleaning", "inspection", "repair"}},
	}
)

// Heuristic extracts with regular expressions. It is deliberately coarse and
// never fails.
type Heuristic struct {
	MaxConfidence float64
}

// NewHeuristic returns a heuristic extractor capped at maxConfidence. A
// non-positive cap uses DefaultFallbackMaxConfidence.
func NewHeuristic(maxConfidence float64) *Heuristic {
	if maxConfidence <= 0 {
		maxConfidence = DefaultFallbackMaxConfidence
	}
	return &Heuristic{MaxConfidence: maxConfidence}
}

// Extract pulls what it can from raw.
func (h *Heuristic) Extract(raw string) *model.ExtractedInfo {
	text := width.Fold.String(raw)
	info := &model.ExtractedInfo{Source: model.SourceFallback}

	info.WorkDate = findDate(text)
	info.WorkCategory = findCategory(text)
	info.FieldName = findFirst(fieldRes, text)
	if m := quantityRe.FindStringSubmatch(text); m != nil {
		if q, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			info.Quantity = &q
			info.Unit = m[2] + m[3]
		}
	}
	if m := workCountRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.WorkCount = &n
		}
	}
	info.Materials = findMaterials(text)

	found := 0
	for _, ok := range []bool{
		info.WorkDate != "", info.WorkCategory != "", info.FieldName != "",
		info.Quantity != nil, len(info.Materials) > 0,
	} {
		if ok {
			found++
		}
	}
	info.SetConfidence(h.maxConfidence() * float64(found) / 5)
	return info
}

func (h *Heuristic) maxConfidence() float64 {
	if h == nil || h.MaxConfidence <= 0 {
		return DefaultFallbackMaxConfidence
	}
	return h.MaxConfidence
}

func findDate(text string) string {
	if d := absoluteDateRe.FindString(text); d != "" {
		return d
	}
	return findFirst(relativeDateRes, text)
}

func findFirst(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func findCategory(text string) model.WorkCategory {
	lower := strings.ToLower(text)
	for _, c := range categoryKeys {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return ""
}

func findMaterials(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(m string) {
		m = strings.Trim(m, "-")
		if m == "" || seen[m] || enStopwords[strings.ToLower(m)] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}
	for _, m := range agentRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range jpAppliedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range enAppliedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

// FallbackGateway tries Primary and degrades to Heuristic when it fails or
// returns nothing.
type FallbackGateway struct {
	Primary   Gateway
	Heuristic *Heuristic
}

// NewFallbackGateway wraps primary. A nil primary always uses the heuristic.
func NewFallbackGateway(primary Gateway, h *Heuristic) *FallbackGateway {
	if h == nil {
		h = NewHeuristic(0)
	}
	return &FallbackGateway{Primary: primary, Heuristic: h}
}

// Extract returns the primary result, or the heuristic result when the
// primary is unavailable. Only caller cancellation is returned as an error.
func (g *FallbackGateway) Extract(ctx context.Context, raw string) (*model.ExtractedInfo, error) {
	if g.Primary != nil {
		info, err := g.Primary.Extract(ctx, raw)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil && info != nil && !info.IsEmpty() {
			return info, nil
		}

		reason := "empty result"
		if err != nil {
			reason = "error"
			if errors.Is(err, resilience.ErrCircuitOpen) {
				reason = "circuit open"
			}
		}
		zap.L().Warn("extraction unavailable, using heuristic fallback",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Heuristic.Extract(raw), nil
}

var _ Gateway = (*FallbackGateway)(nil)
