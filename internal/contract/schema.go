package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tjfontaine/actiongate/internal/core/domain"
)

// Schema is a compiled JSON Schema applied to decoded payloads.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a Draft 2020-12 schema document.
func CompileSchema(name, doc string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://actiongate.schemas.local/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// Name returns the schema name given at compile time.
func (s *Schema) Name() string { return s.name }

// Validate checks a decoded JSON value. The value must use the shapes
// produced by encoding/json (map[string]any, []any, float64...).
func (s *Schema) Validate(v any) error {
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &domain.ValidationError{Reason: domain.ReasonSchema, Detail: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &domain.ValidationError{
		Field:  pointerToField(leaf.InstanceLocation),
		Reason: domain.ReasonSchema,
		Detail: leaf.Message,
	}
}

// pointerToField turns a JSON pointer such as /items/2/id into items[2].id.
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var sb strings.Builder
	for i, seg := range strings.Split(ptr, "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if isIndex(seg) {
			sb.WriteString("[" + seg + "]")
			continue
		}
		if i > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
