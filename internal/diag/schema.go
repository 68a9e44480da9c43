package diag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The bundle format is a contract with external tooling, so reports are
// gated through this schema before anything touches disk.
const reportSchema = `{
	"type": "object",
	"required": ["job_id", "generated_at", "threshold", "final_tier", "final_confidence", "fields", "attempts"],
	"properties": {
		"job_id": {"type": "string", "minLength": 1},
		"original_filename": {"type": "string"},
		"content_type": {"type": "string"},
		"generated_at": {"type": "string"},
		"threshold": {"type": "number", "minimum": 0, "maximum": 100},
		"final_tier": {"enum": ["fast", "full"]},
		"final_confidence": {"type": "number", "minimum": 0, "maximum": 100},
		"fields": {
			"type": "object",
			"required": ["merchant", "purchase_date", "total_amount", "sales_tax_amount"],
			"properties": {
				"merchant": {"type": ["string", "null"]},
				"purchase_date": {"type": ["string", "null"]},
				"total_amount": {"type": ["string", "null"]},
				"sales_tax_amount": {"type": ["string", "null"]}
			}
		},
		"attempts": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["tier", "confidence"],
				"properties": {
					"tier": {"enum": ["fast", "full"]},
					"method": {"type": "string"},
					"engine_confidence": {"type": "number"},
					"confidence": {"type": "number"},
					"text_length": {"type": "integer", "minimum": 0}
				}
			}
		},
		"raw_text": {"type": "string"}
	}
}`

var compiledSchema = mustCompile(reportSchema)

func mustCompile(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("report.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("report.json")
}

func validateReport(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal report: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("report does not match schema: %w", err)
	}
	return nil
}
