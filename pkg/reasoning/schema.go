package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Per-kind schemas for the engine's structured output. Validation happens
// before anything the backend said reaches the state machine.
var outputSchemas = map[PromptKind]string{
	PromptClassifyIntent: `{
		"type": "object",
		"properties": {
			"label": {"type": "string", "minLength": 1},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["label", "confidence"],
		"additionalProperties": false
	}`,
	PromptClarifyQuestion: `{
		"type": "object",
		"properties": {
			"question": {"type": "string", "minLength": 1}
		},
		"required": ["question"],
		"additionalProperties": false
	}`,
	PromptDraftPlan: `{
		"type": "object",
		"properties": {
			"steps": {
				"type": "array",
				"items": {"type": "string", "minLength": 1},
				"minItems": 1
			}
		},
		"required": ["steps"],
		"additionalProperties": false
	}`,
	PromptSelectAgent: `{
		"type": "object",
		"properties": {
			"done": {"type": "boolean"},
			"agent": {"type": "string"},
			"query": {"type": "string"},
			"answer": {"type": "string"}
		},
		"required": ["done"],
		"additionalProperties": false
	}`,
	PromptEvaluateCompletion: `{
		"type": "object",
		"properties": {
			"done": {"type": "boolean"},
			"answer": {"type": "string"}
		},
		"required": ["done"],
		"additionalProperties": false
	}`,
}

func init() {
	// revise_plan shares the draft_plan shape
	outputSchemas[PromptRevisePlan] = outputSchemas[PromptDraftPlan]
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// parseOutput validates raw backend output against the kind's schema and
// unmarshals it into the typed Output.
func parseOutput(kind PromptKind, raw string) (*Output, error) {
	schema, ok := outputSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("no output schema for prompt kind: %s", kind)
	}

	doc := extractJSON(raw)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedOutput, strings.Join(issues, "; "))
	}

	out := &Output{}
	switch kind {
	case PromptClassifyIntent:
		var v IntentOutput
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		out.Intent = &v

	case PromptClarifyQuestion:
		var v struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		out.Question = v.Question

	case PromptDraftPlan, PromptRevisePlan:
		var v PlanOutput
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		out.Plan = &v

	case PromptSelectAgent:
		var v SelectionOutput
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if !v.Done && v.Agent == "" {
			return nil, fmt.Errorf("%w: selection is not done but names no agent", ErrMalformedOutput)
		}
		out.Selection = &v

	case PromptEvaluateCompletion:
		var v CompletionOutput
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		out.Completion = &v
	}

	return out, nil
}
