package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/procman/pkg/client"
)

func newAPIClient(f APIFlags) (*client.Client, error) {
	return client.New(client.Config{BaseURL: f.URL})
}

func runPS(ctx context.Context, f APIFlags, w io.Writer) error {
	c, err := newAPIClient(f)
	if err != nil {
		return err
	}
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tPID\tUPTIME\tPENDING\tDROPPED\tSTATE\tCOMMAND")
	for _, p := range list {
		state := "running"
		if p.Terminated {
			state = "exited"
		}
		uptime := time.Since(p.StartedAt).Truncate(time.Second)
		cmd := strings.TrimSpace(p.Spec.Command + " " + strings.Join(p.Spec.Args, " "))
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%s\t%s\n", p.Name, p.PID, uptime, p.Pending, p.Dropped, state, cmd)
	}
	return tw.Flush()
}

func runStart(ctx context.Context, api APIFlags, f StartFlags, args []string, w io.Writer) error {
	if f.Name == "" {
		return errors.New("--name is required")
	}
	req := client.RegisterRequest{Name: f.Name, Command: args[0], WorkDir: f.WorkDir, Env: f.Env}
	if len(args) > 1 {
		req.Args = args[1:]
	}
	c, err := newAPIClient(api)
	if err != nil {
		return err
	}
	info, err := c.Register(ctx, req)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "started %s pid=%d run_id=%s\n", info.Name, info.PID, info.RunID)
	return nil
}

func runStop(ctx context.Context, f APIFlags, names []string, w io.Writer) error {
	c, err := newAPIClient(f)
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range names {
		if err := c.Stop(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
			continue
		}
		_, _ = fmt.Fprintln(w, "stopped", n)
	}
	return errors.Join(errs...)
}

func addAPIFlag(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.URL, "api-url", client.DefaultConfig().BaseURL, "base URL of a running supervisor's API")
}

func createPSCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List processes of a running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPS(cmd.Context(), *f, cmd.OutOrStdout())
		},
	}
	addAPIFlag(cmd, f)
	return cmd
}

func createStartCommand() *cobra.Command {
	api := &APIFlags{}
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start --name NAME [flags] -- COMMAND [ARGS...]",
		Short: "Register a new process with a running supervisor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), *api, *f, args, cmd.OutOrStdout())
		},
	}
	addAPIFlag(cmd, api)
	cmd.Flags().StringVar(&f.Name, "name", "", "process name")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "absolute working directory")
	cmd.Flags().StringSliceVar(&f.Env, "env", nil, "extra KEY=VALUE entries")
	return cmd
}

func createStopCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop NAME [NAME...]",
		Short: "Stop processes of a running supervisor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), *f, args, cmd.OutOrStdout())
		},
	}
	addAPIFlag(cmd, f)
	return cmd
}
