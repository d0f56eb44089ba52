package tools

import (
	"context"
	"fmt"

	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/coachctx"
)

type bundleKey struct{}

// WithBundle attaches the turn's context bundle to ctx for get_context_block.
func WithBundle(ctx context.Context, bundle coachctx.Bundle) context.Context {
	return context.WithValue(ctx, bundleKey{}, bundle)
}

// BundleFromContext returns the bundle attached by WithBundle.
func BundleFromContext(ctx context.Context) (coachctx.Bundle, bool) {
	b, ok := ctx.Value(bundleKey{}).(coachctx.Bundle)
	return b, ok
}

const contextBlockSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "block": {"type": "string", "enum": ["profile", "diet", "workout", "progress"]}
  },
  "required": ["block"]
}`

// GetContextBlock returns the get_context_block tool. It reads the bundle of
// the running turn from the invocation context.
func GetContextBlock() agent.Tool {
	return mustSchemaTool("get_context_block",
		"Fetch one of the user's stored blocks in full: profile, diet, workout or progress.",
		contextBlockSchema,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			bundle, ok := BundleFromContext(ctx)
			if !ok {
				return "", fmt.Errorf("no user context attached to this turn")
			}
			name := str(args, "block", "")
			content, _ := bundle.Get(name)
			if content == "" {
				return fmt.Sprintf("No %s information on file.", name), nil
			}
			return content, nil
		})
}

// Builtins returns every built-in coaching tool.
func Builtins() []agent.Tool {
	return []agent.Tool{
		CalculateBMI(),
		EstimateDailyCalories(),
		GetContextBlock(),
	}
}
