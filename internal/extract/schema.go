package extract

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema constrains the model's reply. Numbers may arrive as
// strings, and materials as a single comma-separated string.
const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "work_date":     {"type": ["string", "null"]},
    "field_name":    {"type": ["string", "null"]},
    "crop_name":     {"type": ["string", "null"]},
    "work_category": {"type": ["string", "null"]},
    "materials": {
      "anyOf": [
        {"type": "array", "items": {"type": ["string", "null"]}},
        {"type": ["string", "null"]}
      ]
    },
    "quantity":   {"type": ["number", "string", "null"]},
    "unit":       {"type": ["string", "null"]},
    "work_count": {"type": ["integer", "string", "null"]},
    "notes":      {"type": ["string", "null"]}
  }
}`

const schemaURL = "extraction.json"

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(responseSchema)); err != nil {
		return nil, eris.Wrap(err, "extract: add schema resource")
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, eris.Wrap(err, "extract: compile schema")
	}
	return schema, nil
}
