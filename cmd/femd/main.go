// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command femd runs the feature entity manager daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/fem/internal/app/bootstrap"
	femlog "github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded
	femlog.Configure(femlog.Config{Level: "info", Service: "fem", Version: version.Version})
	logger := femlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}

	c, err := bootstrap.WireServices(ctx, version.Version, path)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(femlog.FieldEvent, "startup.failed").
			Str(femlog.FieldPath, path).
			Msg("failed to start")
	}

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(femlog.FieldEvent, "startup.ready").
		Str("source", source).
		Str("tenant", c.Config.Tenant).
		Str("commit", version.Commit).
		Msg("feature entity manager starting")

	runErr := c.App.Run(ctx)
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Str(femlog.FieldEvent, "shutdown.close_failed").Msg("failed to release resources")
	}
	if runErr != nil {
		logger.Error().Err(runErr).Str(femlog.FieldEvent, "shutdown.error").Msg("daemon failed")
		os.Exit(1)
	}
	logger.Info().Str(femlog.FieldEvent, "shutdown.complete").Msg("shutdown complete")
}
