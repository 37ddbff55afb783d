// Package commands provides the CLI commands for phpflow.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "phpflow",
	Short: "phpflow - data flow checks for PHP",
	Long: `phpflow builds a definition-use graph for every PHP function, method,
closure and arrow function, and reports variables that are never used,
never defined, or only defined on some paths.

Commands:
  check       Check files and directories for variable problems
  dfg         Print the data flow graph of one callable
  callables   List the callables phpflow analyzes in a file
  init        Create a configuration file interactively
  doctor      Verify configuration, parser and cache

Use "phpflow [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: ~/.phpflow and ./.phpflow layered)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
}

// loadConfig reads --config when given and the layered configuration otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg writing to w.
func newLogger(cfg *config.Config, w io.Writer) log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, Output: w})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// checkExtension rejects a file whose extension is not one of the
// configured PHP extensions.
func checkExtension(cfg *config.Config, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range cfg.Extensions {
		if strings.ToLower(e) == ext {
			return nil
		}
	}
	return fmt.Errorf("unsupported file type %q (extensions: %s)", ext, strings.Join(cfg.Extensions, " "))
}
