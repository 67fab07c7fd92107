package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/campaign"
)

var (
	// CLI flags for the generate command
	configPath string // Path to the YAML run spec
	seed       int64  // Overrides the run spec seed when set
	outputPath string // Overrides output.path when set
	workers    int    // Overrides proposal.workers when set
	logLevel   string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:     "eventgen",
	Short:   "Synthetic interaction-event catalog generator",
	Version: sim.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// generateCmd runs one generation campaign from a run spec
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an event catalog and write it as shards",
	Run: func(cmd *cobra.Command, args []string) {
		if configPath == "" {
			logrus.Fatalf("--config is required")
		}
		spec, err := campaign.LoadRunSpec(configPath)
		if err != nil {
			logrus.Fatalf("unable to read run spec: %v", err)
		}
		applyOverrides(cmd, spec)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := campaign.Run(ctx, spec)
		if err != nil {
			logrus.Fatalf("generation failed: %v", err)
		}
		logrus.Infof("run %s: %d event groups, %d showers, %d shard(s)",
			res.RunID, res.Attributes.NEvents, len(res.Table), len(res.Manifest.Shards))
	},
}

// applyOverrides copies explicitly set CLI flags over the run spec values.
// Flags left at their defaults never override the YAML.
func applyOverrides(cmd *cobra.Command, spec *campaign.RunSpec) {
	if cmd.Flags().Changed("seed") {
		logrus.Infof("CLI --seed %d overrides run spec seed %d", seed, spec.Seed)
		spec.Seed = seed
	}
	if cmd.Flags().Changed("output") {
		spec.Output.Path = outputPath
	}
	if cmd.Flags().Changed("workers") {
		spec.Proposal.Workers = workers
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	generateCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML run spec")
	generateCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the run (overrides the run spec when set)")
	generateCmd.Flags().StringVar(&outputPath, "output", "", "Output base path (overrides output.path when set)")
	generateCmd.Flags().IntVar(&workers, "workers", 1, "Concurrent propagator calls (overrides proposal.workers when set)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(initCmd)
}
