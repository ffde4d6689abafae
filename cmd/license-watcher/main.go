package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcourtman/license-watcher/internal/logging"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errNotEntitled makes verify exit non-zero without printing a second error.
var errNotEntitled = errors.New("license does not entitle the required feature")

// logFlags override LOG_LEVEL and LOG_FORMAT for a single invocation.
type logFlags struct {
	level  string
	format string
}

// resolve returns the flag values, falling back to the given defaults.
func (f *logFlags) resolve(level, format string) (string, string, error) {
	if f.level != "" {
		level = strings.ToLower(f.level)
	}
	if f.format != "" {
		format = strings.ToLower(f.format)
	}
	if !logging.ValidLevel(level) {
		return "", "", fmt.Errorf("invalid log level %q", level)
	}
	if !logging.ValidFormat(format) {
		return "", "", fmt.Errorf("invalid log format %q", format)
	}
	return level, format, nil
}

func newRootCmd() *cobra.Command {
	logs := &logFlags{}
	rootCmd := &cobra.Command{
		Use:   "license-watcher",
		Short: "Verify the operator license and keep re-evaluating it",
		Long: `license-watcher verifies the clear-signed license stored in a Kubernetes
secret, derives its lifecycle state and re-checks it on a schedule, publishing
a Warning event whenever the license is not active.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context(), logs)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logs.level, "log-level", "", "log level, overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logs.format, "log-format", "", "log format (json, console, auto), overrides LOG_FORMAT")

	rootCmd.AddCommand(newRunCmd(logs))
	rootCmd.AddCommand(newVerifyCmd(logs))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newRunCmd(logs *logFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the license secret (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context(), logs)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "license-watcher %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errNotEntitled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
