package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported, later files override earlier ones

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:               "valuescreen",
	Short:             "Checkpointed value-investing stock screen",
	Long:              `Screens a ticker list against P/E, P/B, D/E and ROE thresholds, adds AI commentary for the passing tickers and writes a CSV that survives interruption.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tickersCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by every command:
// defaults -> config files -> .env -> environment, then the logger.
// Command flags are applied by the commands themselves.
func loadConfig(cmd *cobra.Command, args []string) error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("valuescreen.toml"); err == nil {
			configFiles = append(configFiles, "valuescreen.toml")
		} else if _, err := os.Stat("deployments/local/valuescreen.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/valuescreen.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		// Use temporary logger for startup errors
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		return err
	}

	common.SetDefaultExchange(config.Tickers.DefaultExchange)
	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("badger_path", config.Storage.Badger.Path).
		Str("output", config.Output.Path).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration (sanitized)")

	return nil
}
