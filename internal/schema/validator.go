// Package schema validates JSON documents against JSON Schema definitions.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("schema validation failed")

// ValidationError lists the schema violations of one document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, summarize(e.Problems))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validator caches compiled schemas keyed by their JSON form.
type Validator struct {
	cache sync.Map // map[string]*gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a JSON document. The schema can be a map, a struct or a
// json.RawMessage.
func (v *Validator) Validate(schemaData any, doc []byte) error {
	return v.validate(schemaData, gojsonschema.NewBytesLoader(doc))
}

// ValidateValue checks an already decoded Go value.
func (v *Validator) ValidateValue(schemaData any, value any) error {
	return v.validate(schemaData, gojsonschema.NewGoLoader(value))
}

func (v *Validator) validate(schemaData any, doc gojsonschema.JSONLoader) error {
	compiled, err := v.compile(schemaData)
	if err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}

	result, err := compiled.Validate(doc)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Problems: problems}
}

func (v *Validator) compile(schemaData any) (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(schemaData)
	if err != nil {
		return nil, err
	}
	key := string(raw)

	if val, ok := v.cache.Load(key); ok {
		return val.(*gojsonschema.Schema), nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

// summarize keeps the first three problems.
func summarize(problems []string) string {
	if len(problems) <= 3 {
		return strings.Join(problems, "; ")
	}
	return strings.Join(problems[:3], "; ") + fmt.Sprintf("; ... and %d more", len(problems)-3)
}
