package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here is the data: {"a":1} hope that helps`, `{"a":1}`},
		{"truncated string", `{"field_name": "ハウス`, `{"field_name": "ハウス"}`},
		{"trailing comma", `{"a": "x",`, `{"a": "x"}`},
		{"dangling key", `{"a": "x", "b":`, `{"a": "x"}`},
		{"open array", `{"materials": ["A", "B",`, `{"materials": ["A", "B"]}`},
		{"braces inside strings", `{"notes": "use {x}"}`, `{"notes": "use {x}"}`},
		{"no object", "nothing here", "nothing here"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanJSON(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanJSON_RepairedOutputParses(t *testing.T) {
	inputs := []string{
		`{"work_date": "昨日", "materials": ["ダコニール", "アミス`,
		"```json\n{\"quantity\": 500, \"unit\": \"ml\", \"notes\": {\"k\": [1, 2",
		`{"a": {"b": {"c":`,
	}
	for _, in := range inputs {
		var v map[string]any
		assert.NoError(t, json.Unmarshal([]byte(CleanJSON(in)), &v), in)
	}
}

func TestBalanced(t *testing.T) {
	assert.True(t, balanced(`{"a": [1, {"b": "}"}]}`))
	assert.False(t, balanced(`{"a": [1`))
	assert.False(t, balanced(`{"a": "open`))
}
