// Package tools holds the coaching tools the agent can call. Each tool
// validates its arguments against a JSON schema before running.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/fitcoach/pkg/agent"
	"github.com/xeipuuv/gojsonschema"
)

// NewSchemaTool builds a tool whose arguments are checked against schemaJSON
// before fn runs. The parsed schema is also handed to the provider.
func NewSchemaTool(name, description, schemaJSON string, fn agent.ToolFunc) (agent.Tool, error) {
	if name == "" {
		return agent.Tool{}, fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return agent.Tool{}, fmt.Errorf("tool %s: function is required", name)
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &params); err != nil {
		return agent.Tool{}, fmt.Errorf("tool %s: parse schema: %w", name, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
	if err != nil {
		return agent.Tool{}, fmt.Errorf("tool %s: compile schema: %w", name, err)
	}

	return agent.Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if err := validate(schema, args); err != nil {
				return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
			return fn(ctx, args)
		},
	}, nil
}

func mustSchemaTool(name, description, schemaJSON string, fn agent.ToolFunc) agent.Tool {
	t, err := NewSchemaTool(name, description, schemaJSON, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func validate(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// number reads a numeric argument. Providers decode JSON numbers as float64,
// callers in tests often pass ints.
func number(args map[string]interface{}, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func str(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func encode(v interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
