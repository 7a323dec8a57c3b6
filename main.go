package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/slimcircle/app"
	"github.com/cppla/slimcircle/config"
	"github.com/cppla/slimcircle/routes"
	"github.com/cppla/slimcircle/utils"
)

var (
	skipMigrate bool

	rootCmd = &cobra.Command{
		Use:   "slimcircle",
		Short: "SlimCircle accountability API server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			// Initialize logger early
			return utils.InitLogger(cfg)
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the in-process call job sweep",
		RunE:  runServe,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Process due call reminder jobs once and exit",
		RunE:  runSweep,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or extend the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Migrate(config.InitDatabase())
		},
	}
)

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not auto-migrate tables at boot")
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd)
	// bare invocation keeps the old behavior of starting the server
	rootCmd.RunE = runServe
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApp() (*app.App, error) {
	cfg := config.Get()
	db := config.InitDatabase()
	if !skipMigrate {
		if err := config.Migrate(db); err != nil {
			return nil, err
		}
	}
	return app.New(cfg, db, utils.GetRedis())
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer utils.Logger.Sync() //nolint:errcheck

	srv := utils.NewServer(":"+a.Config.AppPort, routes.SetupRouter(a), utils.DefaultReadTimeout, utils.DefaultWriteTimeout)

	if a.Config.CallJobsSweepEnabled {
		runner, err := a.NewRunner()
		if err != nil {
			return fmt.Errorf("call job sweep schedule: %w", err)
		}
		runner.Start()
		srv.OnShutdown(runner.Stop)
	}
	srv.OnShutdown(func(context.Context) { a.Close() })

	utils.Sugar.Infof("Starting server on port %s (graceful)", a.Config.AppPort)
	return srv.ListenAndServe()
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer utils.Logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*time.Minute)
	defer cancel()
	res := a.Scheduler.ProcessScheduledJobs(ctx)
	utils.Logger.Info("one-off sweep finished",
		zap.Int("processed", res.Processed),
		zap.Int("executed", res.Executed),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Int("abandoned", res.Abandoned))
	a.Close()
	return nil
}
