package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/harness"
	"github.com/xkilldash9x/alertbench/internal/observability"
)

// newRunCmd creates the `run` command.
func newRunCmd(loadConfig configLoader) *cobra.Command {
	var (
		browsers    []string
		format      string
		output      string
		runner      string
		concurrency int
		asyncWait   time.Duration
	)

	runCmd := &cobra.Command{
		Use:   "run <suite.yaml>...",
		Short: "Runs test suites in the selected browsers and reports the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := loadConfig()

			// Flags override file and environment values only when given.
			flags := cmd.Flags()
			if flags.Changed("browser") {
				cfg.SetBrowserTags(browsers)
			}
			if flags.Changed("runner") {
				cfg.SetHarnessRunner(runner)
			}
			if flags.Changed("concurrency") {
				cfg.SetHarnessConcurrency(concurrency)
			}
			if flags.Changed("async-wait") {
				cfg.SetHarnessAsyncWait(asyncWait)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid options: %w", err)
			}
			format = strings.ToLower(format)
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			var tags []schemas.Tag
			for _, raw := range cfg.Browser().Tags {
				tag, err := schemas.ParseTag(raw)
				if err != nil {
					return err
				}
				tags = append(tags, tag)
			}

			h, err := harness.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create harness: %w", err)
			}

			var names []string
			total := harness.NewReport(uuid.New().String(), "", cfg.Harness().Runner)
			for _, path := range args {
				suite, err := harness.LoadSuiteFile(path)
				if err != nil {
					return err
				}
				names = append(names, suite.Name)
				report, err := h.RunSuite(ctx, suite, tags)
				if report != nil {
					total.Merge(report)
				}
				if err != nil {
					return fmt.Errorf("suite %s: %w", suite.Name, err)
				}
				if cfg.Harness().FailFast && report.Failed() {
					logger.Info("Stopping after failing suite.", zap.String("suite", suite.Name))
					break
				}
			}
			total.Suite = strings.Join(names, ", ")

			if err := writeReport(cmd.OutOrStdout(), output, format, total); err != nil {
				return err
			}
			if total.Failed() {
				return fmt.Errorf("%w: %d of %d results", ErrRunFailed, len(total.Failures()), len(total.Results))
			}
			return nil
		},
	}

	runCmd.Flags().StringSliceVarP(&browsers, "browser", "b", nil, "browser tag to run (repeatable, e.g. CHROME, FF60, IE)")
	runCmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text or json")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	runCmd.Flags().StringVar(&runner, "runner", "", "runner: inprocess or chrome")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of case and browser pairs run at once")
	runCmd.Flags().DurationVar(&asyncWait, "async-wait", 0, "how long a page may keep timers and requests running after load")
	return runCmd
}

func writeReport(stdout io.Writer, path, format string, report *harness.Report) (err error) {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if format == "json" {
		return report.WriteJSON(w)
	}
	return report.WriteText(w)
}
