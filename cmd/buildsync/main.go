// Package main is the entry point for buildsync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/buildsync/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var opts app.Options

	root := &cobra.Command{
		Use:   "buildsync",
		Short: "Keep project configuration in sync with build files",
		Long: `buildsync imports a source tree into a workspace with the most relevant
importer, then watches build files and updates project configuration
according to the update policy (automatic, interactive or disabled).`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to the TOML preferences file")
	flags.StringVarP(&opts.WorkspacePath, "workspace", "w", "", "workspace metadata directory")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newServeCmd(&opts), newImportCmd(&opts), newVersionCmd())
	return root
}

func newServeCmd(opts *app.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [root]",
		Short: "Serve JSON-RPC over stdio for an editor client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var root string
			if len(args) == 1 {
				root = args[0]
			}
			opts.Version = version

			a, err := app.New(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context(), root, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "watch the root for file changes")
	return cmd
}

func newImportCmd(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <root>",
		Short: "Import a source tree into the workspace and list the projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Import(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "buildsync %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
