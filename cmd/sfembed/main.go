package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Trickfest/StockfishEmbedded/internal/config"
	"github.com/Trickfest/StockfishEmbedded/internal/engine"
	"github.com/Trickfest/StockfishEmbedded/internal/events"
	"github.com/Trickfest/StockfishEmbedded/internal/linechan"
	"github.com/Trickfest/StockfishEmbedded/internal/logging"
	"github.com/Trickfest/StockfishEmbedded/internal/session"
	"github.com/Trickfest/StockfishEmbedded/internal/uci"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := uuid.NewString()
	logger, err := logging.New(ctx, logging.WithRunID(runID))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	cmd := newRootCommand(cfg, logger.Logger, runID)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, logger *log.Logger, runID string) *cobra.Command {
	root := &cobra.Command{
		Use:           "sfembed",
		Short:         "Embedded UCI engine session driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newBenchCommand(cfg, logger, runID),
		newPerftCommand(cfg, logger),
		newProbeCommand(cfg, logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}

func newBenchCommand(cfg *config.Config, logger *log.Logger, runID string) *cobra.Command {
	var iterations int
	var limit string

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a scripted search session against the embedded engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionCfg := cfg.SessionConfig()
			if iterations > 0 {
				sessionCfg.MaxIterations = iterations
			}
			if limit != "" {
				sessionCfg.Limit = limit
			}

			bus := events.New(events.WithLogger(stdLogger{logger}))
			bus.SubscribeAll(newLogObserver(logger))

			stub := uci.NewStub(uci.WithSearchDelay(50 * time.Millisecond))
			runner, err := session.New(sessionCfg, stub.Run, session.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("configure session: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go func() {
				<-signalCtx.Done()
				runner.Stop()
			}()

			// The console renders synchronously so the final summary is
			// always flushed; the bus fans out to async observers.
			sink := session.MultiSink{
				newConsoleSink(cmd.OutOrStdout()),
				events.NewSessionSink(bus, runID),
			}
			summary := runner.Run(cmd.Context(), sink)
			cancel()

			if summary.Errors > 0 {
				return fmt.Errorf("session finished with %d error(s)", summary.Errors)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", 0, "override the configured iteration cap")
	cmd.Flags().StringVar(&limit, "limit", "", "override the configured search limit directive")
	return cmd
}

func newPerftCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var depth int
	var position string

	cmd := &cobra.Command{
		Use:   "perft",
		Short: "Count leaf nodes from a position to a fixed depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if depth <= 0 {
				depth = cfg.PerftDepth
			}
			stub := uci.NewStub()
			started := time.Now()
			nodes, err := session.Perft(cmd.Context(), stub.Run, position, depth, cfg.MoveTimeout)
			if err != nil {
				return fmt.Errorf("perft depth %d: %w", depth, err)
			}
			elapsed := time.Since(started)
			logger.Info("perft completed", "depth", depth, "nodes", nodes, "elapsed", elapsed)
			fmt.Fprintf(cmd.OutOrStdout(), "perft(%d) = %d nodes in %s\n", depth, nodes, elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "perft depth (defaults to configured perft_depth)")
	cmd.Flags().StringVar(&position, "position", "", "position directive (defaults to the starting position)")
	return cmd
}

func newProbeCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Start the engine, verify readiness, and shut it down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines := linechan.New()
			controller := engine.New(uci.NewStub().Run, lines)
			controller.Start()
			defer func() {
				controller.Stop()
				lines.Finish()
			}()

			waitCtx, cancel := context.WithTimeout(cmd.Context(), cfg.HandshakeTimeout)
			defer cancel()

			controller.SendCommand(uci.CmdInit)
			var identity string
			for {
				line, ok := lines.Next(waitCtx)
				if !ok {
					return errors.New("engine did not complete the handshake in time")
				}
				if identity == "" && uci.HasPrefix(line, "id") {
					identity = line
					continue
				}
				if uci.HasPrefix(line, uci.AckInit) {
					break
				}
			}

			controller.SendCommand(uci.CmdIsReady)
			for {
				line, ok := lines.Next(waitCtx)
				if !ok {
					return errors.New("engine did not acknowledge readiness in time")
				}
				if uci.HasPrefix(line, uci.AckReady) {
					break
				}
			}

			logger.Info("probe succeeded", "identity", identity)
			fmt.Fprintf(cmd.OutOrStdout(), "engine ready: %s\n", identity)
			return nil
		},
	}
}

// stdLogger adapts the structured logger to the bus's Printf interface.
type stdLogger struct {
	logger *log.Logger
}

func (s stdLogger) Printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

// newConsoleSink renders session events as human-readable lines.
func newConsoleSink(out io.Writer) session.Sink {
	return session.SinkFunc(func(payload session.Event) {
		switch payload.Kind {
		case session.KindIterationStarted:
			fmt.Fprintf(out, "[%d] %s\n", payload.Iteration, payload.Request)
		case session.KindIterationCompleted:
			result := payload.Result
			score := "no score"
			if result != nil && result.HasScore {
				score = fmt.Sprintf("score %s %d", result.Score.Type, result.Score.Value)
			}
			move := ""
			if result != nil {
				move = result.Move
			}
			fmt.Fprintf(out, "[%d] bestmove %s (%s) in %s\n", payload.Iteration, move, score, payload.Elapsed.Round(time.Millisecond))
		case session.KindTimeout:
			fmt.Fprintf(out, "[%d] timeout after %s\n", payload.Iteration, payload.Elapsed.Round(time.Millisecond))
		case session.KindError:
			fmt.Fprintf(out, "error: %s\n", payload.Message)
		case session.KindFinished:
			if payload.Summary != nil {
				s := payload.Summary
				fmt.Fprintf(out, "done: %d attempted, %d completed, %d timeouts, %d errors in %s\n",
					s.Attempted, s.Completed, s.Timeouts, s.Errors, s.Elapsed.Round(time.Millisecond))
			}
		}
	})
}

// newLogObserver mirrors session events into the structured log.
func newLogObserver(logger *log.Logger) events.Handler {
	return func(event events.Event) {
		payload, ok := event.Payload.(session.Event)
		if !ok || payload.Kind == session.KindOutputLine {
			return
		}
		entry := logger.With("event", string(payload.Kind), "session_id", event.SessionID)
		switch event.Severity {
		case events.SeverityError:
			entry.Error("session event", "message", payload.Message)
		case events.SeverityWarn:
			entry.Warn("session event", "iteration", payload.Iteration)
		default:
			entry.Info("session event")
		}
	}
}
