package handler

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const generateRequestSchemaURL = "generate-request.json"

// generateRequestSchema describes the POST /generate-pdfs body. Unknown item
// fields are allowed and ignored.
const generateRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items"],
  "properties": {
    "jobId": {"type": ["string", "null"]},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "whatIsA":   {"type": ["string", "null"]},
          "thatCould": {"type": ["string", "null"]},
          "freeText":  {"type": ["string", "null"]},
          "email":     {"type": ["string", "null"]}
        }
      }
    }
  }
}`

func compileGenerateSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(generateRequestSchemaURL, strings.NewReader(generateRequestSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile(generateRequestSchemaURL)
}
