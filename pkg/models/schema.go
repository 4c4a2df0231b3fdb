package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidRecord indicates a persisted workflow record does not match the record schema.
var ErrInvalidRecord = errors.New("invalid workflow record")

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property.
type Property struct {
	Type       any                  `json:"type"`
	Enum       []any                `json:"enum,omitempty"`
	Minimum    *int                 `json:"minimum,omitempty"`
	Maximum    *int                 `json:"maximum,omitempty"`
	MinLength  *int                 `json:"minLength,omitempty"`
	Format     string               `json:"format,omitempty"`
	Items      *Property            `json:"items,omitempty"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

func intPtr(v int) *int {
	return &v
}

func enumOf[T ~string](values []T) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}

	return out
}

func versionProperty(current int) *Property {
	return &Property{Type: "integer", Minimum: intPtr(1), Maximum: intPtr(current)}
}

// RecordSchema describes the persisted workflow record. Versions newer than the ones this
// build knows about are refused rather than misread.
func RecordSchema() *JSONSchema {
	stringList := &Property{Type: []any{"array", "null"}, Items: &Property{Type: "string"}}

	return &JSONSchema{
		Type:  "object",
		Title: "workflow",
		Required: []string{
			"id", "owner", "category", "state",
			"workflow_version", "source_version", "event_version", "events",
		},
		Properties: map[string]*Property{
			"id":               {Type: "string", MinLength: intPtr(1)},
			"owner":            {Type: "string", MinLength: intPtr(1)},
			"category":         {Type: "string", Enum: enumOf(Categories)},
			"state":            {Type: "string", Enum: enumOf(States)},
			"workflow_version": versionProperty(WorkflowVersion),
			"source_version":   versionProperty(SourceVersion),
			"event_version":    versionProperty(EventVersion),
			"parties":          stringList,
			"accounts":         stringList,
			"units":            stringList,
			"notary":           {Type: "string"},
			"source_items": {
				Type: []any{"array", "null"},
				Items: &Property{
					Type:     "object",
					Required: []string{"kind", "id"},
					Properties: map[string]*Property{
						"kind":     {Type: "string", MinLength: intPtr(1)},
						"id":       {Type: "string", MinLength: intPtr(1)},
						"revision": {Type: "integer"},
						"snapshot": {Type: "string"},
					},
				},
			},
			"events": {
				Type: "array",
				Items: &Property{
					Type:     "object",
					Required: []string{"type", "time", "success"},
					Properties: map[string]*Property{
						"type":    {Type: "string", Enum: enumOf(EventTypes)},
						"time":    {Type: "string", Format: "date-time"},
						"success": {Type: "boolean"},
						"version": {Type: "integer"},
						"source":  {Type: "string"},
						"memo":    {Type: "string"},
					},
				},
			},
		},
	}
}

var recordSchema = mustCompile(RecordSchema())

func mustCompile(schema *JSONSchema) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Errorf("failed to compile workflow record schema: %w", err))
	}

	return compiled
}

// ValidateRecord checks a serialized workflow record against RecordSchema.
func ValidateRecord(data []byte) error {
	result, err := recordSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(messages, "; "))
	}

	return nil
}
