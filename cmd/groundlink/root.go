package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/groundlink"
	"github.com/opd-ai/groundlink/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile         string
	logLevel        string
	endpoints       []string
	targetSystem    uint8
	targetComponent uint8
	showStats       bool

	// Shared state set during PersistentPreRun
	cfg *config.Config
)

// rootCmd is the base command for groundlink.
var rootCmd = &cobra.Command{
	Use:   "groundlink",
	Short: "MAVLink ground link: commands and file transfer",
	Long: `groundlink sends MAVLink commands with acknowledgment and retry, and
moves files to and from a vehicle with the MAVLink FTP protocol. It can also
serve a local directory to other ground stations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return applyFlags(cmd, cfg)
	},
}

// applyFlags overrides cfg with the global flags that were set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("endpoint") {
		cfg.Endpoints = endpoints
	}
	if flags.Changed("target-system") {
		cfg.Target.SystemID = targetSystem
	}
	if flags.Changed("target-component") {
		cfg.Target.ComponentID = targetComponent
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// newSystem builds the System a subcommand works with. Tests replace it.
var newSystem = func(cfg *config.Config, opts ...groundlink.Option) (*groundlink.System, error) {
	return groundlink.New(cfg, opts...)
}

// withSystem starts a System, runs fn while the System loop runs in the
// background and closes everything afterwards.
func withSystem(cmd *cobra.Command, fn func(ctx context.Context, sys *groundlink.System) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []groundlink.Option
	var stats io.Closer
	if showStats {
		scope, closer := groundlink.NewLogScope("groundlink", 10*time.Second)
		opts = append(opts, groundlink.WithScope(scope))
		stats = closer
	}

	sys, err := newSystem(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = sys.Close()
		if stats != nil {
			_ = stats.Close()
		}
	}()

	go func() {
		if err := sys.Run(ctx); err != nil && err != context.Canceled && err != groundlink.ErrClosed {
			logrus.WithFields(logrus.Fields{
				"function": "withSystem",
				"error":    err.Error(),
			}).Error("System loop stopped")
		}
	}()

	return fn(ctx, sys)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.groundlink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().StringSliceVar(&endpoints, "endpoint", nil, "endpoint, e.g. udps:0.0.0.0:14550 or serial:/dev/ttyACM0:57600 (repeatable)")
	rootCmd.PersistentFlags().Uint8Var(&targetSystem, "target-system", 0, "vehicle system id")
	rootCmd.PersistentFlags().Uint8Var(&targetComponent, "target-component", 0, "vehicle component id")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "log link metrics")

	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(ftpCmd)
	rootCmd.AddCommand(serveCmd)
}
