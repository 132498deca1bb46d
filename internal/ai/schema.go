package ai

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed extraction.schema.json
var extractionSchemaJSON []byte

var compileExtractionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.schema.json", bytes.NewReader(extractionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("extraction.schema.json")
})

// ValidateExtraction checks a raw gateway payload against the extraction
// schema. Only the shape is checked, never plausibility.
func ValidateExtraction(data []byte) error {
	schema, err := compileExtractionSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("extraction does not match schema: %w", err)
	}
	return nil
}

// DecodeExtraction validates then decodes a raw gateway payload.
func DecodeExtraction(data []byte) (Extraction, error) {
	if err := ValidateExtraction(data); err != nil {
		return Extraction{}, err
	}
	var e Extraction
	if err := json.Unmarshal(data, &e); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	return e, nil
}
