// Command profileflow runs the profile intake, amendment and publication
// stages against the configured stores.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"profileflow/internal/config"
	"profileflow/internal/server"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "profileflow:", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configFile string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := config.New()
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "profileflow",
		Short:         "Matrimonial profile intake and publication pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default ./profileflow.yaml when present)")
	pf.Bool("dry-run", false, "log notifications and channel posts instead of sending them")
	pf.String("schema", "", "column mapping file (overrides schema.file)")
	pf.String("store", "", "tabular driver: memory, sqlite, postgres or sheets")
	_ = v.BindPFlag("dry_run", pf.Lookup("dry-run"))
	_ = v.BindPFlag("schema.file", pf.Lookup("schema"))
	_ = v.BindPFlag("store.driver", pf.Lookup("store"))

	root.AddCommand(
		stageCommand(v, flags, stdout, stderr, "intake", "Append new submissions and apply pending amendments",
			func(ctx context.Context, a *app) (any, error) { return a.service.Intake(ctx) }),
		stageCommand(v, flags, stdout, stderr, "amend", "Apply pending amendments only",
			func(ctx context.Context, a *app) (any, error) { return a.service.ApplyAmendments(ctx) }),
		stageCommand(v, flags, stdout, stderr, "sync", "Mirror processed profiles into the publication stores",
			func(ctx context.Context, a *app) (any, error) { return a.service.SyncPublication(ctx) }),
		stageCommand(v, flags, stdout, stderr, "publish", "Post confirmed profiles to the channel",
			func(ctx context.Context, a *app) (any, error) { return a.service.Publish(ctx) }),
		stageCommand(v, flags, stdout, stderr, "run", "Run intake, sync and publish in order",
			func(ctx context.Context, a *app) (any, error) { return a.service.Run(ctx) }),
		serveCommand(v, flags, stderr),
	)
	return root
}

// setup loads settings and wires the application for one command.
func setup(ctx context.Context, v *viper.Viper, flags *rootFlags, stderr io.Writer, withRuntime bool) (*app, error) {
	s, err := config.Load(v, flags.configFile)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(stderr, s.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return wire(ctx, s, logger, stderr, withRuntime)
}

func stageCommand(v *viper.Viper, flags *rootFlags, stdout, stderr io.Writer, name, short string,
	run func(context.Context, *app) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, v, flags, stderr, false)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
					a.logger.Warn("shutdown", "error", cerr)
				}
			}()

			report, runErr := run(ctx, a)
			a.pushMetrics(context.WithoutCancel(ctx))
			if err := writeReport(stdout, name, report); err != nil {
				return err
			}
			return runErr
		},
	}
}

func serveCommand(v *viper.Viper, flags *rootFlags, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stage triggers, health and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, v, flags, stderr, true)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
					a.logger.Warn("shutdown", "error", cerr)
				}
			}()

			opts := []server.Option{
				server.WithMetricsHandler(a.metrics.Handler()),
				server.WithToken(a.settings.Serve.Token),
				server.WithLogger(a.logger),
			}
			if a.tp != nil {
				opts = append(opts, server.WithTracerProvider(a.tp))
			}
			srv := server.New(a.service, opts...)
			a.logger.Info("serving", "addr", a.settings.Serve.Addr)
			return srv.ListenAndServe(ctx, a.settings.Serve.Addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides serve.addr)")
	_ = v.BindPFlag("serve.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
