package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshp123/litterwatch/internal/config"
	"github.com/joshp123/litterwatch/internal/litterbox"
	"github.com/joshp123/litterwatch/internal/logging"
	"github.com/joshp123/litterwatch/internal/tuya"
)

// Set by -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "version" {
		fmt.Fprintf(stdout, "Version: %s\nCommit: %s\nBuilt: %s\n", Version, GitCommit, BuildDate)
		return 0
	}

	if _, err := config.LoadDotEnv(); err != nil {
		return fail(stdout, litterbox.ConfigError(err), litterbox.Result{})
	}

	flags := flag.NewFlagSet("litterwatch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return fail(stdout, litterbox.ConfigError(err), litterbox.Result{})
	}

	cfg, err := config.Load(*configPath, os.LookupEnv)
	if err != nil {
		return fail(stdout, litterbox.ConfigError(err), litterbox.Result{})
	}

	logger, closer := logging.New(logging.Options{Debug: cfg.Debug, File: cfg.LogFile, Stderr: stderr})
	defer closer.Close()

	device, err := tuya.NewDevice(tuya.Config{
		Address:  cfg.DeviceIP,
		DeviceID: cfg.DeviceID,
		LocalKey: cfg.LocalKey,
		Version:  cfg.Version,
		Port:     cfg.DevicePort,
	})
	if err != nil {
		return fail(stdout, litterbox.ConfigError(err), litterbox.Result{})
	}
	defer device.Close()

	orchestrator := litterbox.Orchestrator{
		Device:   tuyaDevice{client: device},
		DeviceID: cfg.DeviceID,
		Logger:   logger,
	}
	result, runErr := orchestrator.Run(ctx)
	report(ctx, cfg, logger, result, runErr)

	if runErr != nil {
		logger.Error("run failed", "kind", litterbox.KindOf(runErr), "error", runErr)
		return fail(stdout, runErr, result)
	}
	if err := printJSON(stdout, newSuccessOutput(result)); err != nil {
		logger.Error("format json", "error", err)
		return 1
	}

	if cfg.Quiescence > 0 {
		logger.Debug("holding before exit", "delay", cfg.Quiescence)
		time.Sleep(cfg.Quiescence)
	}
	return 0
}

func fail(stdout io.Writer, err error, result litterbox.Result) int {
	_ = printJSON(stdout, newErrorOutput(err, result))
	return 1
}
