package cli

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harun/fitcoach/internal/config"
	"github.com/harun/fitcoach/internal/observability"
	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/coach"
	"github.com/spf13/cobra"
)

var (
	chatUser        string
	chatContext     contextFlags
	chatMetricsAddr string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the coach interactively",
	Long: `Read questions from stdin, one per line, keeping the conversation
history between turns. Statistics are logged on the configured report
schedule and the log level follows edits to the config file.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "cli", "user ID for the conversation")
	chatCmd.Flags().StringVar(&chatContext.profile, "profile", "", "user profile text or @file")
	chatCmd.Flags().StringVar(&chatContext.diet, "diet", "", "diet plan text or @file")
	chatCmd.Flags().StringVar(&chatContext.workout, "workout", "", "workout plan text or @file")
	chatCmd.Flags().StringVar(&chatContext.progress, "progress", "", "recent progress text or @file")
	chatCmd.Flags().StringVar(&chatMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	bundle, err := chatContext.bundle()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.log.Component("chat")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := chatMetricsAddr
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

	if spec := a.cfg.Metrics.ReportSchedule; spec != "" {
		reporter, err := observability.NewReporter(spec, a.service.Recorder(), a.log.Zerolog())
		if err != nil {
			return err
		}
		reporter.Start()
		defer func() {
			reporter.Stop()
			reporter.Report()
		}()
	}

	if logLevel == "" {
		if err := a.loader.Watch(func(cfg *config.Config, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("Ignoring unreadable config change")
				return
			}
			if err := a.log.SetLevel(cfg.Logging.Level); err != nil {
				logger.Warn().Err(err).Msg("Ignoring invalid log level")
				return
			}
			logger.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
		}); err != nil {
			logger.Debug().Err(err).Msg("Config watch disabled")
		}
	}

	var history []agent.Message
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}
		if input == "/stats" {
			_ = printSnapshot(out, a.service.Stats())
			continue
		}

		turnCtx := ctx
		var cancel context.CancelFunc = func() {}
		if timeout := a.turnTimeout(); timeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		reply, err := a.service.Respond(turnCtx, coach.Turn{
			UserID:       chatUser,
			Input:        input,
			SystemPrompt: a.cfg.Agent.SystemPrompt,
			History:      history,
			Context:      bundle,
		})
		cancel()

		if err != nil {
			fmt.Fprintln(out, coach.UserMessage(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		fmt.Fprintln(out, reply.Result.Output)
		history = append(history,
			agent.Message{Role: agent.RoleUser, Content: input},
			agent.Message{Role: agent.RoleAssistant, Content: reply.Result.Output},
		)
	}

	return scanner.Err()
}
