package resume

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/urdufact-go/internal/models"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator checks resumed items against a JSON Schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles a JSON Schema given as a Go value.
func NewSchemaValidator(def map[string]any) (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
	if err != nil {
		return nil, fmt.Errorf("compile resume schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// RequireStrings builds a validator that demands non-empty string fields.
func RequireStrings(fields ...string) (*SchemaValidator, error) {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{"type": "string", "minLength": 1}
	}
	return NewSchemaValidator(objectSchema(fields, props))
}

// RequireBools builds a validator that demands boolean fields.
func RequireBools(fields ...string) (*SchemaValidator, error) {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{"type": "boolean"}
	}
	return NewSchemaValidator(objectSchema(fields, props))
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(item models.WorkItem) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("invalid entry: %s", strings.Join(errs, ", "))
}
