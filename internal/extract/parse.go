package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/worklog-cli/internal/model"
)

// parseResponse turns the model's reply into an ExtractedInfo.
func parseResponse(schema *jsonschema.Schema, text string) (*model.ExtractedInfo, error) {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return nil, ErrEmptyExtraction
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "extract: decode response")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, eris.Wrap(err, "extract: response does not match schema")
	}

	obj, _ := doc.(map[string]any)
	info := &model.ExtractedInfo{
		WorkDate:     str(obj["work_date"]),
		FieldName:    str(obj["field_name"]),
		CropName:     str(obj["crop_name"]),
		WorkCategory: model.WorkCategory(str(obj["work_category"])),
		Materials:    materials(obj["materials"]),
		Unit:         str(obj["unit"]),
		Notes:        str(obj["notes"]),
		Source:       model.SourceLLM,
	}

	if q, unit, ok := number(obj["quantity"]); ok {
		info.Quantity = &q
		if info.Unit == "" {
			info.Unit = unit
		}
	}
	if n, _, ok := number(obj["work_count"]); ok && n >= 0 && n == math.Trunc(n) {
		info.WorkCount = model.Int(int(n))
	}

	if info.IsEmpty() {
		return nil, ErrEmptyExtraction
	}
	return info, nil
}

// nullWords are placeholders models emit instead of JSON null.
var nullWords = map[string]bool{"null": true, "none": true, "n/a": true, "unknown": true, "不明": true, "なし": true}

func str(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if nullWords[strings.ToLower(s)] {
		return ""
	}
	return s
}

var materialSplit = regexp.MustCompile(`\s*[,、，]\s*`)

func materials(v any) []string {
	var raw []string
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			raw = append(raw, str(item))
		}
	case string:
		raw = materialSplit.Split(x, -1)
	}
	var out []string
	for _, m := range raw {
		if m = strings.TrimSpace(m); m != "" && !nullWords[strings.ToLower(m)] {
			out = append(out, m)
		}
	}
	return out
}

var (
	leadingNumber = regexp.MustCompile(`^\s*([-+]?(?:\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?))\s*(.*?)\s*$`)
	thousandsNum  = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// parseDecimal reads s as a number. Commas grouping exactly three digits
// are thousands separators; any other single comma is a decimal point.
func parseDecimal(s string) (float64, error) {
	if thousandsNum.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

// number accepts a non-negative JSON number or a string such as "500",
// "1.5", "1,500" or "500ml". A unit found after a numeric string is returned
// alongside the value. Negative values are treated as absent.
func number(v any) (float64, string, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0, "", false
		}
		return f, "", true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return 0, "", false
		}
		return x, "", true
	case string:
		m := leadingNumber.FindStringSubmatch(x)
		if m == nil {
			return 0, "", false
		}
		// "1,5000" must not split into 1,500 plus a unit of "0".
		if m[2] != "" && m[2][0] >= '0' && m[2][0] <= '9' {
			return 0, "", false
		}
		f, err := parseDecimal(m[1])
		if err != nil || f < 0 {
			return 0, "", false
		}
		return f, m[2], true
	}
	return 0, "", false
}
