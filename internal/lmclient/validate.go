package lmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/clawd/internal/errs"
)

// Validator checks that an LM response contains JSON matching a
// compiled schema, extracting it defensively from surrounding prose or
// markdown fencing the same way the underlying model tends to produce.
type Validator struct {
	schema     *jsonschema.Schema
	maxRetries int
}

// NewValidator compiles schemaJSON once at construction; maxRetries <= 0
// defaults to 2.
func NewValidator(schemaJSON []byte, maxRetries int) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Validator{schema: schema, maxRetries: maxRetries}, nil
}

// Result is the outcome of validating one response against the schema.
type Result struct {
	JSON   string
	Parsed any
}

// Validate extracts JSON from text and checks it against the schema,
// returning a descriptive error (never a panic) on any failure.
func (v *Validator) Validate(text string) (Result, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return Result{}, fmt.Errorf("response does not contain valid JSON")
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return Result{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(parsed); err != nil {
		return Result{}, fmt.Errorf("schema validation failed: %w", err)
	}
	return Result{JSON: jsonStr, Parsed: parsed}, nil
}

// ChatAndValidate calls client.Chat, validates the response, and on
// failure retries by feeding the validation error back to the model as
// a correction prompt, up to maxRetries times.
func ChatAndValidate(ctx context.Context, client Client, v *Validator, messages []Message, maxTokens int) (Result, string, error) {
	var lastErr error
	for attempt := 0; attempt <= v.maxRetries; attempt++ {
		resp, err := client.Chat(ctx, messages, maxTokens)
		if err != nil {
			return Result{}, "", err
		}
		result, valErr := v.Validate(resp.Content)
		if valErr == nil {
			return result, resp.Content, nil
		}
		lastErr = valErr
		if attempt == v.maxRetries {
			break
		}
		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content})
		messages = append(messages, Message{
			Role: RoleUser,
			Content: fmt.Sprintf(
				"Your response did not match the required JSON schema. Error: %s\n\n"+
					"Please try again, ensuring your response contains valid JSON matching the schema.",
				valErr,
			),
		})
	}
	return Result{}, "", errs.LMBadResponse("validate", lastErr)
}

// extractJSON finds a JSON object or array in free-form response text,
// trying a ```json fence, then a bare fence, then a balanced-brace scan.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + 7
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); candidate != "" {
				return candidate
			}
		}
	}

	if idx := strings.Index(text, "```\n"); idx >= 0 {
		start := idx + 4
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isJSON(candidate) {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			candidate := extractBalanced(text[i:])
			if candidate != "" && isJSON(candidate) {
				return candidate
			}
		}
	}

	return ""
}

func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

// extractBalanced extracts the first balanced brace/bracket structure
// starting at s[0], respecting string literals and escapes.
func extractBalanced(s string) string {
	if len(s) == 0 {
		return ""
	}
	open := s[0]
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			depth++
		} else if ch == closeCh {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
