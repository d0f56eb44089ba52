package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/fitcoach/internal/observability"
	"github.com/harun/fitcoach/pkg/agenterr"
	"github.com/harun/fitcoach/pkg/coach"
	"github.com/spf13/cobra"
)

var (
	askUser        string
	askContext     contextFlags
	askJSON        bool
	askMetricsAddr string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the coach one question",
	Long: `Run a single coaching turn. Context blocks can be passed inline or read
from files with an @ prefix, e.g. --workout @plan.txt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "cli", "user ID for the turn")
	askCmd.Flags().StringVar(&askContext.profile, "profile", "", "user profile text or @file")
	askCmd.Flags().StringVar(&askContext.diet, "diet", "", "diet plan text or @file")
	askCmd.Flags().StringVar(&askContext.workout, "workout", "", "workout plan text or @file")
	askCmd.Flags().StringVar(&askContext.progress, "progress", "", "recent progress text or @file")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	askCmd.Flags().StringVar(&askMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(askCmd)
}

// askOutput is the --json shape of an answer.
type askOutput struct {
	TurnID   string      `json:"turn_id"`
	Output   string      `json:"output"`
	Degraded bool        `json:"degraded"`
	Kind     string      `json:"primary_error,omitempty"`
	Tools    []string    `json:"tools"`
	Error    *errorReply `json:"error,omitempty"`
}

type errorReply struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	bundle, err := askContext.bundle()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := askMetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		shutdown, err := serveMetrics(addr, a)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if timeout := a.turnTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply, err := a.service.Respond(ctx, coach.Turn{
		UserID:       askUser,
		Input:        strings.Join(args, " "),
		SystemPrompt: a.cfg.Agent.SystemPrompt,
		Context:      bundle,
	})
	return printReply(cmd, reply, err, askJSON)
}

func printReply(cmd *cobra.Command, reply coach.Reply, err error, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		o := askOutput{
			TurnID:   reply.TurnID,
			Output:   reply.Result.Output,
			Degraded: reply.Result.Degraded,
			Tools:    reply.Result.ToolNames(),
		}
		if reply.Result.Degraded || err != nil {
			o.Kind = reply.Kind.String()
		}
		var te *agenterr.TurnError
		if errors.As(err, &te) {
			o.Error = &errorReply{Message: te.Response.UserMessage, Status: te.Response.HTTPStatus}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(o); encErr != nil {
			return encErr
		}
		if err != nil && o.Error == nil {
			return err
		}
		return nil
	}

	if err != nil {
		fmt.Fprintln(out, coach.UserMessage(err))
		return fmt.Errorf("turn %s failed", reply.TurnID)
	}

	fmt.Fprintln(out, reply.Result.Output)
	if reply.Result.Degraded {
		fmt.Fprintln(cmd.ErrOrStderr(), "(answered without tools: "+reply.Kind.String()+")")
	}
	return nil
}

// serveMetrics exposes the Prometheus registry and returns a shutdown func.
func serveMetrics(addr string, a *app) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := a.log.Component("metrics_server")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
