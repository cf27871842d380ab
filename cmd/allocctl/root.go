package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"costalloc/internal/backend"
	"costalloc/internal/cli"
	"costalloc/internal/config"
	"costalloc/internal/core"
	"costalloc/internal/log"
)

var (
	flagYear    int
	flagQuarter int
	flagType    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "allocctl",
	Short:         "Cost allocation worksheet CLI",
	Long:          "Inspect, edit and save quarterly cost allocation worksheets.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Warn(err.Error()))
		os.Exit(1)
	}
}

func init() {
	current := core.PeriodOf(time.Now())
	rootCmd.PersistentFlags().IntVarP(&flagYear, "year", "y", current.Year, "Fiscal year")
	rootCmd.PersistentFlags().IntVarP(&flagQuarter, "quarter", "q", int(current.Quarter), "Quarter (1-4)")
	rootCmd.PersistentFlags().StringVarP(&flagType, "type", "t", "", "Project type (construction, factory, investment)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")
}

// app is the wired backend and services shared by every command.
type app struct {
	logger  *log.Logger
	cfg     *config.Config
	backend *backend.BackendResult
	svc     *cli.Services
}

// openApp loads the configuration and connects to the backend.
func openApp(ctx context.Context) (*app, error) {
	cli.LoadEnvFile()
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	logger := cli.SetupLogger(level).WithComponent(log.ComponentCLI)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	svc, err := cli.BuildServices(logger, cfg, res)
	if err != nil {
		_ = res.Cleanup()
		return nil, err
	}
	return &app{logger: logger, cfg: cfg, backend: res, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.logger.Warn("AMQP close error", log.FieldError, err)
	}
	if err := a.backend.Cleanup(); err != nil {
		a.logger.Warn("Backend cleanup error", log.FieldError, err)
	}
}

// target returns the period and project type selected by the flags.
func target() (core.Period, core.ProjectType, error) {
	p, err := core.NewPeriod(flagYear, flagQuarter)
	if err != nil {
		return core.Period{}, "", err
	}
	if flagType == "" {
		return core.Period{}, "", errors.New("--type is required")
	}
	t, err := core.ParseProjectType(flagType)
	if err != nil {
		return core.Period{}, "", err
	}
	return p, t, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}
