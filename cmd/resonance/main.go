package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nvandessel/resonance/internal/config"
	"github.com/nvandessel/resonance/internal/logging"
)

var version = "0.1.0-dev"

// exitInterrupted is returned to the shell when a run is cancelled by a signal.
const exitInterrupted = 130

func main() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	err := newRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, context.Canceled) {
		os.Exit(exitInterrupted)
	}
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resonance",
		Short: "Evolve a marketing post against a simulated audience",
		Long: `resonance drafts a synthetic population, wires it into a follow graph,
and lets the post spread through it tick by tick. Each generation is scored,
and the copy is rewritten from the audience's reactions until it meets the
fitness threshold or the generation budget runs out.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./resonance.yaml or ~/.resonance/config.yaml)")
	rootCmd.PersistentFlags().String("dir", "", "Data directory for the archive, exports and decision logs")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads the effective configuration for a command: file and
// environment first, then the persistent --dir flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Store.Dir = dir
	}
	return cfg, nil
}

// newLogger writes operational logs to w, as JSON when --json is set so
// stdout stays machine-readable.
func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer) *slog.Logger {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return logging.NewJSONLogger(cfg.Logging.Level, w)
	}
	return logging.NewLogger(cfg.Logging.Level, w)
}

// signalContext returns a context cancelled on the first interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				writeJSON(out, map[string]string{"version": version})
			} else {
				fmt.Fprintf(out, "resonance version %s\n", version)
			}
		},
	}
}
