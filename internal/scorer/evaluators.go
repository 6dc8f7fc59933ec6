package scorer

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/normalize"
)

var (
	absoluteDateRes = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`),
		regexp.MustCompile(`^\d{1,2}/\d{1,2}$`),
		regexp.MustCompile(`\d{1,2}月\d{1,2}日`),
		regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日`),
	}
	relativeDateRes = []*regexp.Regexp{
		regexp.MustCompile(`^(today|yesterday|tonight|this morning|this afternoon)$`),
		regexp.MustCompile(`^(the )?day before yesterday$`),
		regexp.MustCompile(`^\d+ days? ago$`),
		regexp.MustCompile(`^last (monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`),
		regexp.MustCompile(`^(今日|本日|昨日|一昨日|おととい|きのう|きょう)$`),
		regexp.MustCompile(`^\d+日前$`),
	}
	vagueDateWords = []string{"日", "月", "週", "week", "month", "morning", "afternoon", "evening"}

	fieldSpecificRes = []*regexp.Regexp{
		regexp.MustCompile(`\d`),
		regexp.MustCompile(`第.+(圃場|畑|田|ハウス)`),
	}
	fieldGenericWords = []string{"畑", "田", "圃場", "ハウス", "温室", "field", "greenhouse", "house", "orchard", "plot", "paddy"}

	commonCrops = []string{
		"tomato", "cucumber", "eggplant", "pepper", "strawberry", "lettuce", "cabbage",
		"spinach", "onion", "carrot", "potato", "rice", "wheat", "corn", "soybean",
		"grape", "apple", "melon",
		"トマト", "キュウリ", "ナス", "ピーマン", "イチゴ", "レタス", "キャベツ",
		"ホウレンソウ", "タマネギ", "ニンジン", "ジャガイモ", "米", "稲", "小麦", "大豆",
		"ブドウ", "リンゴ", "メロン",
	}

	productCodeRe   = regexp.MustCompile(`[\p{L}\d]+[-_][\p{L}\d]+`)
	formulationWord = []string{"剤", "液", "粉", "粒", "fungicide", "insecticide", "herbicide", "fertilizer", "pesticide"}

	commonUnits = map[string]bool{
		"l": true, "ml": true, "kg": true, "g": true, "t": true, "tons": true,
		"liter": true, "liters": true, "litre": true, "litres": true,
		"unit": true, "units": true, "bag": true, "bags": true, "bottle": true, "bottles": true,
		"袋": true, "本": true, "回": true, "箱": true, "個": true, "cc": true,
	}
)

func evalDate(info model.ExtractedInfo) float64 {
	d := strings.ToLower(strings.TrimSpace(info.WorkDate))
	if d == "" {
		return 0
	}
	for _, re := range absoluteDateRes {
		if re.MatchString(d) {
			return 1.0
		}
	}
	for _, re := range relativeDateRes {
		if re.MatchString(d) {
			return 0.9
		}
	}
	if containsAny(d, vagueDateWords...) {
		return 0.6
	}
	return 0.3
}

func evalField(info model.ExtractedInfo) float64 {
	f := strings.ToLower(strings.TrimSpace(info.FieldName))
	if f == "" {
		return 0
	}
	for _, re := range fieldSpecificRes {
		if re.MatchString(f) {
			return 1.0
		}
	}
	if containsAny(f, fieldGenericWords...) {
		return 0.8
	}
	if utf8.RuneCountInString(f) >= 2 {
		return 0.5
	}
	return 0.2
}

func evalCrop(info model.ExtractedInfo) float64 {
	raw := strings.TrimSpace(info.CropName)
	if raw == "" {
		return 0
	}
	c := normalize.Text(raw)
	partial := false
	for _, known := range commonCrops {
		k := normalize.Text(known)
		if c == k {
			return 1.0
		}
		if strings.Contains(c, k) || strings.Contains(k, c) {
			partial = true
		}
	}
	if partial {
		return 0.8
	}
	if utf8.RuneCountInString(c) >= 2 && !isNumeric(c) {
		return 0.6
	}
	return 0.3
}

func evalCategory(info model.ExtractedInfo) float64 {
	c := info.WorkCategory
	switch {
	case c == "":
		return 0
	case c.Valid():
		return 1.0
	case model.ParseWorkCategory(string(c)) != "":
		return 0.8
	case utf8.RuneCountInString(string(c)) >= 2:
		return 0.5
	default:
		return 0.2
	}
}

func evalMaterials(info model.ExtractedInfo) float64 {
	if len(info.Materials) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range info.Materials {
		total += evalMaterial(m)
	}
	return total / float64(len(info.Materials))
}

func evalMaterial(name string) float64 {
	m := strings.ToLower(strings.TrimSpace(name))
	switch {
	case m == "":
		return 0
	case strings.IndexFunc(m, unicode.IsDigit) >= 0 || productCodeRe.MatchString(m):
		return 1.0
	case containsAny(m, formulationWord...):
		return 0.8
	case utf8.RuneCountInString(m) >= 3:
		return 0.6
	default:
		return 0.3
	}
}

func evalQuantity(info model.ExtractedInfo) (float64, error) {
	score := 0.0
	if q := info.Quantity; q != nil {
		if math.IsNaN(*q) || math.IsInf(*q, 0) {
			return 0, eris.Errorf("scorer: invalid quantity %v", *q)
		}
		if *q > 0 {
			score += 0.6
		}
	}
	if u := strings.ToLower(strings.TrimSpace(info.Unit)); u != "" {
		if commonUnits[u] {
			score += 0.4
		} else {
			score += 0.2
		}
	}
	return math.Min(score, 1.0), nil
}

func evalSpecificity(info model.ExtractedInfo) float64 {
	filled := 0.0
	for _, set := range []bool{
		info.WorkDate != "",
		info.FieldName != "",
		info.CropName != "",
		info.WorkCategory != "",
		len(info.Materials) > 0,
	} {
		if set {
			filled++
		}
	}
	if strings.TrimSpace(info.Notes) != "" {
		filled += 0.5
	}
	if info.WorkCount != nil {
		filled += 0.5
	}
	return math.Min(filled/5, 1.0)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return s != ""
}
