package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/channel-warehouse/internal/config"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig     string
	flagDryRun     bool
	flagChannels   []string
	flagLimit      int
	flagLakePrefix string
	flagSample     bool
)

var rootCmd = &cobra.Command{
	Use:           "warehouse",
	Short:         "Channel message collector and star-schema warehouse",
	Long:          "warehouse collects public channel messages into a raw store and reshapes them into channel, date and message tables for analysis.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "config.yaml", "path to config file")
	pf.BoolVar(&flagDryRun, "dry-run", false, "use an in-memory warehouse instead of PostgreSQL")
	pf.StringSliceVar(&flagChannels, "channels", nil, "channels to collect (overrides config)")
	pf.IntVar(&flagLimit, "limit", 0, "messages per channel (overrides config)")
	pf.StringVar(&flagLakePrefix, "lake-prefix", "", "data lake prefix (overrides config)")

	loadCmd.Flags().BoolVar(&flagSample, "sample", false, "seed an empty lake with the sample batch first")

	rootCmd.AddCommand(collectCmd, loadCmd, buildCmd, runCmd, verifyCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "warehouse %s (commit: %s)\n", version, commit)
	},
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if len(flagChannels) > 0 {
		cfg.Collector.Channels = flagChannels
	}
	if flagLimit > 0 {
		cfg.Collector.Limit = flagLimit
	}
	if flagLakePrefix != "" {
		cfg.Lake.Prefix = flagLakePrefix
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}
