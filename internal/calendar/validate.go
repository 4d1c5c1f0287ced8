package calendar

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schemas for the REST calendar wire contract.
var (
	eventSchema = map[string]any{
		"type":     "object",
		"required": []any{"id", "start", "end"},
		"properties": map[string]any{
			"id":               map[string]any{"type": "string", "minLength": 1},
			"start":            map[string]any{"type": "string", "format": "date-time"},
			"end":              map[string]any{"type": "string", "format": "date-time"},
			"title":            map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"location":         map[string]any{"type": "string"},
			"conferencingLink": map[string]any{"type": "string"},
			"updated":          map[string]any{"type": "string"},
			"key":              map[string]any{"type": "string"},
		},
	}

	eventListSchema = map[string]any{
		"type":     "object",
		"required": []any{"events"},
		"properties": map[string]any{
			"events": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "schema://event.json"},
			},
		},
	}
)

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	resources := map[string]map[string]any{
		"schema://event.json":      eventSchema,
		"schema://event-list.json": eventListSchema,
	}
	for url, def := range resources {
		// The compiler expects plain decoded JSON values.
		raw, err := json.Marshal(def)
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema %s: %w", url, err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			schemaErr = fmt.Errorf("parse schema %s: %w", url, err)
			return
		}
		if err := c.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("add resource %s: %w", url, err)
			return
		}
	}

	schemas = make(map[string]*jsonschema.Schema, len(resources))
	for url := range resources {
		compiled, err := c.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", url, err)
			return
		}
		schemas[url] = compiled
	}
}

// validateResponse checks a provider payload against the named schema.
// Returns *ErrInvalidResponse on failure.
func validateResponse(name string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return &ErrInvalidResponse{Body: raw, Err: schemaErr}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ErrInvalidResponse{Body: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := schemas["schema://"+name+".json"].Validate(parsed); err != nil {
		return &ErrInvalidResponse{Body: raw, Err: fmt.Errorf("schema validation failed: %w", err)}
	}
	return nil
}
