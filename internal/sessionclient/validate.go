package sessionclient

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload schema names.
const (
	schemaStartSession    = "start-session"
	schemaStaticQuestions = "static-questions"
	schemaDynamicQuestion = "dynamic-question"
	schemaResult          = "completion-result"
	schemaHistory         = "session-history"
	schemaDetail          = "session-detail"
)

var optionSchema = map[string]any{
	"type":     "object",
	"required": []any{"value", "label"},
	"properties": map[string]any{
		"value": map[string]any{"type": []any{"string", "number"}},
		"label": map[string]any{"type": "string"},
	},
}

var questionProperties = map[string]any{
	"id":           map[string]any{"type": "string"},
	"text":         map[string]any{"type": "string", "minLength": 1},
	"responseType": map[string]any{"enum": []any{"singleChoice", "text"}},
	"options":      map[string]any{"type": "array", "items": optionSchema},
}

var summaryProperties = map[string]any{
	"sessionId": map[string]any{"type": "string", "minLength": 1},
	"score":     map[string]any{"type": []any{"number", "null"}},
	"riskLevel": map[string]any{"type": "string"},
}

var payloadSchemas = map[string]map[string]any{
	schemaStartSession: {
		"type":     "object",
		"required": []any{"sessionId"},
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string", "minLength": 1},
		},
	},
	schemaStaticQuestions: {
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"required":   []any{"id", "text"},
			"properties": questionProperties,
		},
	},
	schemaDynamicQuestion: {
		"type":       "object",
		"required":   []any{"text"},
		"properties": questionProperties,
	},
	schemaResult: {
		"type":       "object",
		"properties": summaryProperties,
	},
	schemaHistory: {
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"required":   []any{"sessionId"},
			"properties": summaryProperties,
		},
	},
	schemaDetail: {
		"type":       "object",
		"required":   []any{"sessionId"},
		"properties": summaryProperties,
	},
}

// schemaCache caches compiled payload schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// decodePayload validates body against the named schema and decodes it
// into out. Any failure wraps ErrMalformedResponse.
func decodePayload(name string, body []byte, out any) error {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrMalformedResponse, err)
	}

	compiled, err := compiledSchema(name)
	if err != nil {
		return fmt.Errorf("%w: compile schema %q: %v", ErrMalformedResponse, name, err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func compiledSchema(name string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	def, ok := payloadSchemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	// Round-trip through JSON so the compiler sees plain decoded values.
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://mindbridge/%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}
