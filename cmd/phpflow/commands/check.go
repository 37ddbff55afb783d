package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/log"
	"github.com/l3aro/phpflow/pkg/lint"
	"github.com/l3aro/phpflow/pkg/project"
)

// ErrDiagnosticsFound is returned by check when at least one finding was
// reported. main turns it into exit status 1.
var ErrDiagnosticsFound = errors.New("diagnostics found")

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check PHP files for unused and undefined variables",
	Long: `Checks every PHP file under the given paths (default: the current
directory). Files and directories matched by .gitignore or .phpflowignore
are skipped. Exits with status 1 when any finding is reported.

Rules:
  unused-variable               a value is assigned and never read
  unused-parameter              a parameter is never read (off by default)
  undefined-variable            a variable is read before any assignment
  possibly-undefined-variable   a variable is assigned on some paths only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyCheckFlags(cmd, cfg); err != nil {
			return err
		}
		return runCheck(cmd, cfg, args)
	},
}

// applyCheckFlags lets explicitly set flags override the loaded config.
func applyCheckFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		v, _ := flags.GetString("format")
		cfg.Format = lint.Format(v)
	}
	if flags.Changed("no-cache") {
		cfg.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("rules") {
		cfg.Rules, _ = flags.GetStringSlice("rules")
	}
	if flags.Changed("enable") {
		extra, _ := flags.GetStringSlice("enable")
		cfg.Rules = append(cfg.Rules, extra...)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func runCheck(cmd *cobra.Command, cfg *config.Config, paths []string) error {
	logger := newLogger(cfg, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return project.Watch(cmd.Context(), cfg, paths, logger, func(report *project.Report, err error) {
			if err != nil {
				logger.Error("check failed", "err", err)
				return
			}
			if err := printReport(out, cmd.ErrOrStderr(), cfg.Format, report); err != nil {
				logger.Error("writing report", "err", err)
			}
		})
	}

	runner, err := project.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	var spinner *log.ProgressSpinner
	if cfg.Format == lint.FormatText {
		spinner = log.NewProgressSpinner(cmd.ErrOrStderr(), "checking")
		runner.OnProgress = func(done, total int) {
			spinner.Progress("checked", done, total)
		}
		spinner.Start()
	}
	report, err := runner.Run(cmd.Context(), paths)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	if err := printReport(out, cmd.ErrOrStderr(), cfg.Format, report); err != nil {
		return err
	}
	if len(report.Diagnostics) > 0 {
		return ErrDiagnosticsFound
	}
	return nil
}

// printReport writes the findings to out and, for text output, a summary
// line to summary.
func printReport(out, summary io.Writer, format lint.Format, report *project.Report) error {
	if err := lint.Write(out, format, report.Diagnostics); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if format != lint.FormatText {
		return nil
	}

	for _, e := range report.Errors {
		fmt.Fprintf(summary, "%s: skipped: %s\n", e.Path, e.Err)
	}
	noun := "problems"
	if len(report.Diagnostics) == 1 {
		noun = "problem"
	}
	fmt.Fprintf(summary, "%d %s in %d files (%d callables, %d cached)\n",
		len(report.Diagnostics), noun, report.Files, report.Callables, report.CacheHits)
	return nil
}

func init() {
	checkCmd.Flags().StringP("format", "f", "text", "Output format: text or json")
	checkCmd.Flags().Bool("no-cache", false, "Do not read or write the result cache")
	checkCmd.Flags().IntP("workers", "w", 0, "Files checked in parallel (0 = one per CPU)")
	checkCmd.Flags().StringSlice("rules", nil, "Rules to run, replacing the configured set")
	checkCmd.Flags().StringSlice("enable", nil, "Rules to run in addition to the configured set")
	checkCmd.Flags().Bool("watch", false, "Re-check whenever a PHP file changes")
	RootCmd.AddCommand(checkCmd)
}
