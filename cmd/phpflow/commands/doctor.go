package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration, parser and cache",
	Long: `Checks the configuration, runs the analyzer on a built-in snippet and
verifies that the cache directory is writable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfigWithPath(cmd)
		if err != nil {
			return err
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if result.EffectivePath == "" {
			fmt.Fprintln(out, "Using config: built-in defaults")
		} else {
			fmt.Fprintf(out, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
		}
		fmt.Fprintf(out, "Rules: %s\n", result.Rules)
		displayComponents(out, result)

		if result.HasError() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// loadConfigWithPath loads the configuration and reports which file has
// the highest priority, or "" when only defaults apply.
func loadConfigWithPath(cmd *cobra.Command) (*config.Config, string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		return cfg, path, nil
	}

	effectivePath := ""
	if p := config.ProjectConfigFilePath(); fileExists(p) {
		effectivePath = p
	} else if p := config.GlobalConfigFilePath(); fileExists(p) {
		effectivePath = p
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, effectivePath, nil
}

func displayComponents(w io.Writer, result *healthcheck.HealthCheckResult) {
	for _, c := range []healthcheck.ComponentStatus{result.Parser, result.Cache, result.IgnoreFile} {
		fmt.Fprintf(w, "\n%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, "  Detail: %s\n", c.Detail)
		}
		fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "disabled", "missing":
		return "-"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
