package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// exitError carries a child's exit code out of cobra.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(ctx)
	err := root.Execute()
	stop()

	var ee exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot(ctx context.Context) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "procman",
		Short: "Supervise child processes and stream their output",
		Long: `procman spawns processes, captures their stdout and stderr, detects when
they exit and reports everything as a stream of events.

Examples:
  procman run --config procman.toml
  procman exec --name build -- make -j4
  procman start --name web -- python3 -m http.server
  procman ps
  procman version`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetContext(ctx)
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createRunCommand(globalFlags),
		createExecCommand(),
		createPSCommand(),
		createStartCommand(),
		createStopCommand(),
		createVersionCommand(),
	)
	return root
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Run every configured process until all have finished",
		Long: `Register every [[processes]] entry of the config, optionally serve the
HTTP API and Prometheus metrics, and dispatch events until the registry is
empty. SIGINT or SIGTERM stops all processes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := RunFlags{ConfigPath: globalFlags.ConfigPath}
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return runSupervisor(cmd.Context(), f)
		},
	}
}

func createExecCommand() *cobra.Command {
	f := &ExecFlags{}
	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND [ARGS...]",
		Short: "Supervise a single command and mirror its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runExec(cmd.Context(), *f, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "exec", "process name used in logs")
	cmd.Flags().DurationVar(&f.PollInterval, "poll", 0, "process loop poll interval (default 200ms)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "warn", "supervisor log level")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the procman version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "procman", version)
		},
	}
}
