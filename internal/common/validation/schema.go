// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error flattens the result into a single message.
func (r *ValidationResult) Error() string {
	if r == nil || r.Valid {
		return ""
	}
	msg := ""
	for i, e := range r.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return msg
}

// SchemaSet holds compiled JSON schemas keyed by name (one per watched table).
type SchemaSet struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaSet() *SchemaSet {
	return &SchemaSet{schemas: make(map[string]*gojsonschema.Schema)}
}

// Register compiles schema (a Go map or JSON string) under name.
func (s *SchemaSet) Register(name string, schema interface{}) error {
	var loader gojsonschema.JSONLoader
	switch v := schema.(type) {
	case string:
		loader = gojsonschema.NewStringLoader(v)
	default:
		loader = gojsonschema.NewGoLoader(v)
	}

	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}

	s.mu.Lock()
	s.schemas[name] = compiled
	s.mu.Unlock()
	return nil
}

// Has reports whether a schema is registered under name.
func (s *SchemaSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.schemas[name]
	return ok
}

// Validate checks doc against the named schema. Unknown names validate trivially.
func (s *SchemaSet) Validate(name string, doc interface{}) (*ValidationResult, error) {
	s.mu.RLock()
	schema, ok := s.schemas[name]
	s.mu.RUnlock()
	if !ok {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	return out, nil
}
