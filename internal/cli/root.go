// Package cli implements the cpmp command-line surface: cobra subcommands
// for solving a single instance, serving the HTTP API, and inspecting
// version information.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tanaka-lab/cpmp/internal/cpmp/logutil"
	"github.com/tanaka-lab/cpmp/pkg/config"
	"github.com/tanaka-lab/cpmp/pkg/utils"
)

var (
	verbose    bool
	configPath string

	logger utils.Logger
	appCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cpmp",
	Short: "A branch-and-bound solver for the container premarshalling problem",
	Long: `cpmp sorts a yard of container stacks into retrieval order using the
minimum number of intra-yard relocations, via iterative-deepening
branch-and-bound search with admissible lower bounds and dominance pruning.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logutil.Verbose(utils.LevelInfo, verbose)
		logger = logutil.New(level, os.Stderr)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appCfg = cfg
		return nil
	},
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "increase diagnostic stream verbosity")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults: ./config.yaml, ./configs/config.yaml, /etc/cpmp)")

	binName := BinName()
	rootCmd.Example = `  # Solve an instance, printing the compact relocation list
  ` + binName + ` solve -i yard.txt -S

  # Solve with a 30-second CPU-time budget and save run history
  ` + binName + ` solve -i yard.txt -T 30 --save-history

  # Start the HTTP JSON API
  ` + binName + ` serve --addr :8080`
}

// BinName returns the base name of the current executable, used to render
// usage examples against whatever name the binary was invoked as.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// GetLogger returns the logger configured by the root command's
// PersistentPreRunE.
func GetLogger() utils.Logger {
	return logger
}

// GetConfig returns the configuration loaded by the root command's
// PersistentPreRunE.
func GetConfig() *config.Config {
	return appCfg
}
