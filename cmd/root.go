// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/internal/config"
	"github.com/xkilldash9x/alertbench/internal/observability"
)

// ErrRunFailed is returned when a run finished with failing results.
var ErrRunFailed = errors.New("one or more cases failed")

// configLoader returns the configuration loaded by the root command.
type configLoader func() *config.Config

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile string
		cfg     *config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "alertbench",
		Short: "alertbench checks that test pages raise the expected alerts in every simulated browser.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "alertbench"})
				return err
			}
			cfg = loaded
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting alertbench", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./alertbench.yaml, then ~/.alertbench/alertbench.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	loader := func() *config.Config { return cfg }
	rootCmd.AddCommand(
		newRunCmd(loader),
		newServeCmd(loader),
		newBrowsersCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx and logs a failure.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, ErrRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
	}
	observability.Sync()
	return err
}
