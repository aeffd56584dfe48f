// Command agent runs the survival agent: a simulated world, an in-process
// associative engine, and the decision loop between them, plus the audio
// autonomy path, replay fixtures, and storage inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/survival-agent/internal/config"
)

var (
	// global flags
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    config.Config
)

// EnvLogLevel overrides the log level ("debug", "info", "warn", "error").
const EnvLogLevel = "AGENT_LOG_LEVEL"

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "survival agent over an associative memory engine",
	Long: `agent simulates a creature surviving on three vitals. Each step its
sensors feed an associative engine, the engine ranks the actions it has
learned about, and the outcome is consolidated back into long-term weights.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if raw := os.Getenv(EnvLogLevel); raw != "" {
			var level zapcore.Level
			if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err == nil {
				zcfg.Level = zap.NewAtomicLevelAt(level)
			}
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "agent.yaml", "runner config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging at debug level")

	rootCmd.AddCommand(runCmd, audioCmd, replayCmd, seedCmd, inspectCmd, exportCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
