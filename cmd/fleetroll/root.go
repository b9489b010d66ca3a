package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nimbusops/fleetroll/internal/config"
	"github.com/nimbusops/fleetroll/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"

	appViper = config.New()
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "fleetroll",
	Short:   "Graceful, zone-aware rollover and scale-down for container-host fleets",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fleetroll version %s (commit: %s)\n", Version, Commit))

	config.BindPersistentFlags(rootCmd, appViper)

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(rolloverCmd)
	rootCmd.AddCommand(scaledownCmd)
	rootCmd.AddCommand(elbDetachCmd)
	rootCmd.AddCommand(albDetachCmd)
	rootCmd.AddCommand(dockerStopCmd)
	rootCmd.AddCommand(ec2StopCmd)
	rootCmd.AddCommand(ec2TerminateCmd)
	rootCmd.AddCommand(checkTaskCmd)
}

func initLogging() {
	cfg := config.Load(appViper)
	l, err := logging.New(cfg.LogDevelopment)
	if err != nil {
		// zap's own Config.Build only fails on a malformed encoder/sink
		// configuration, never at runtime; treat it as unrecoverable.
		panic(fmt.Sprintf("fleetroll: build logger: %v", err))
	}
	logger = l
}

// appConfig re-resolves Config from the bound viper instance; called from
// each subcommand's RunE after flags have been parsed.
func appConfig() *config.Config {
	return config.Load(appViper)
}
