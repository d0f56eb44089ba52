// Package agent runs a coaching turn against an LLM.
//
// Runner is the primary path: a tool-calling loop bounded by
// AgentConfig.MaxIterations. FallbackRunner is the degraded path used when
// the primary path fails: one direct model call with no tools and a
// compressed system prompt.
//
// Invariants:
//   - Neither runner retries or swallows errors; callers classify failures
//     with agenterr and decide what to do next.
//   - Every terminal outcome, including cancellation, is recorded in the
//     shared stats.Recorder.
//   - There is no third path: a fallback failure ends the turn.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{Agent: cfg, Recorder: rec, Logger: log})
//	result, err := runner.Execute(ctx, agent.TurnInput{SystemPrompt: p, Input: "hello"})
//	if err != nil {
//		fb, _ := agent.NewFallbackRunner(agent.FallbackConfig{Provider: cfg.Provider, Recorder: rec})
//		result, err = fb.Execute(ctx, agent.FallbackInput{Input: "hello", SystemPrompt: p})
//	}
package agent
