package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/harun/fitcoach/pkg/coach"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <benchmark.json>",
	Short: "Run a benchmark file and print the resulting statistics",
	Long: `Run every turn of a benchmark file through the coach and print the
statistics snapshot as JSON. The file is a JSON array of turns:

  [{"user_id": "u1", "input": "How many sets today?", "context": {"workout": "..."}}]`,
	Args: cobra.ExactArgs(1),
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

// benchmarkTurn is one entry of a benchmark file.
type benchmarkTurn struct {
	UserID  string          `json:"user_id"`
	Input   string          `json:"input"`
	Context coachctx.Bundle `json:"context"`
}

func loadBenchmark(path string) ([]benchmarkTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark: %w", err)
	}
	var turns []benchmarkTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark: %w", err)
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("benchmark %s has no turns", path)
	}
	return turns, nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	turns, err := loadBenchmark(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.log.Component("benchmark")

	for i, t := range turns {
		reply, err := a.service.Respond(cmd.Context(), coach.Turn{
			UserID:       t.UserID,
			Input:        t.Input,
			SystemPrompt: a.cfg.Agent.SystemPrompt,
			Context:      t.Context,
		})
		level := zerolog.InfoLevel
		if err != nil {
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Err(err).
			Int("turn", i).
			Str("turn_id", reply.TurnID).
			Bool("degraded", reply.Result.Degraded).
			Msg("Benchmark turn finished")
	}

	return printSnapshot(cmd.OutOrStdout(), a.service.Stats())
}

func printSnapshot(w io.Writer, s stats.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
