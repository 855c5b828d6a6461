// Package cli implements the relocate command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/relocator/internal/config"
	"github.com/Ning0612/relocator/internal/logger"
	"github.com/Ning0612/relocator/internal/service"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// set by PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "relocate",
	Version: "dev",
	Short:   "Move a collection and its user data to a new directory",
	Long: `relocate moves a data directory to a new location in two phases.

The essential phase copies the collection and switches the active collection
to the destination. The user data phase then moves everything else, and can be
interrupted and resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logCfg, err := loaded.LoggerConfig()
		if err != nil {
			return err
		}
		if err := logger.Init(logCfg); err != nil {
			return err
		}
		if verbose {
			logger.SetLevel(logger.LevelDebug)
		}
		cfg = loaded
		return nil
	},
}

// SetVersion sets the version printed by --version
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	defer logger.Shutdown()
	return rootCmd.Execute()
}

// newService opens the migration service for the loaded configuration
func newService() (*service.MigrationService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return service.NewMigrationService(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search ./config.yaml and the user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddGroup(&cobra.Group{ID: "migration", Title: "Migration:"})
	rootCmd.AddGroup(&cobra.Group{ID: "inspection", Title: "Inspection:"})

	rootCmd.AddCommand(useCmd, essentialCmd, userdataCmd, unlockCmd)
	rootCmd.AddCommand(statusCmd, historyCmd)
}
