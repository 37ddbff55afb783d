package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/healthcheck"
	"github.com/l3aro/phpflow/pkg/lint"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize phpflow configuration interactively",
	Long: `Guides you through setting up phpflow configuration step by step.
Creates a config file with the enabled rules, ignored variable prefixes,
output format and worker count.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Rules ===
	rules := append([]string(nil), cfg.Rules...)
	options := make([]huh.Option[string], 0, len(lint.AllRules))
	for _, r := range lint.AllRules {
		options = append(options, huh.NewOption(string(r), string(r)).Selected(lint.DefaultRules.Enabled(r)))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Rules").
				Description("Select the findings phpflow should report").
				Options(options...).
				Value(&rules).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("select at least one rule")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Ignored prefixes and output ===
	prefixes := strings.Join(cfg.IgnorePrefixes, ",")
	format := string(cfg.Format)
	workers := strconv.Itoa(cfg.Workers)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ignored variable prefixes").
				Description("Comma-separated; variables starting with these are never reported").
				Placeholder("_").
				Value(&prefixes),
			huh.NewSelect[string]().
				Title("Output format").
				Options(
					huh.NewOption("Text (file:line:col: message)", string(lint.FormatText)),
					huh.NewOption("JSON", string(lint.FormatJSON)),
				).
				Value(&format),
			huh.NewInput().
				Title("Workers").
				Description("Files checked in parallel, 0 for one per CPU").
				Placeholder("0").
				Value(&workers).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.phpflow/config.yaml)", "project"),
					huh.NewOption("Global (~/.phpflow/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if fileExists(configPath) {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg.Rules = rules
	cfg.IgnorePrefixes = splitPrefixes(prefixes)
	cfg.Format = lint.Format(format)
	cfg.Workers, _ = strconv.Atoi(workers)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Rules: %s\n", strings.Join(cfg.Rules, ", "))
	fmt.Printf("Ignored prefixes: %s\n", strings.Join(cfg.IgnorePrefixes, ", "))
	fmt.Printf("Format: %s\n", cfg.Format)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	absPath, _ := filepath.Abs(configPath)
	fmt.Printf("Config Path: %s\n", absPath)
	displayComponents(os.Stdout, result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func splitPrefixes(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	RootCmd.AddCommand(initCmd)
}
