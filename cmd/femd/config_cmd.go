// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/fem/internal/config"
	"github.com/ManuGH/fem/internal/version"
)

const redacted = "***"

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  femd config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  femd config dump [--file|-f config.yaml] [--out effective.yaml]")
}

// resolveDefaultConfigPath returns ${FEM_DATA_DIR}/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv(config.EnvPrefix + "DATA_DIR"))
	if dataDir == "" {
		dataDir = config.DefaultDataDir
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func configPath(file string) string {
	if path := strings.TrimSpace(file); path != "" {
		return path
	}
	return resolveDefaultConfigPath()
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs, file := newFlagSet("femd config validate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path := configPath(*file)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no default config.yaml found in $FEM_DATA_DIR)")
		return 2
	}

	if _, err := config.NewLoader(path, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", path)
	return 0
}

// runConfigDump prints the effective configuration (defaults, file and
// environment merged) with secrets redacted. With --out the dump replaces
// the target file atomically.
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs, file := newFlagSet("femd config dump", stderr)
	out := fs.String("out", "", "write the dump to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path := configPath(*file)

	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return 1
	}
	redactSecrets(&cfg)

	if *out == "" {
		if err := encodeYAML(stdout, cfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeAtomic(*out, cfg); err != nil {
		fmt.Fprintf(stderr, "Failed to write %s: %v\n", *out, err)
		return 1
	}
	fmt.Fprintf(stdout, "effective configuration written to %s\n", *out)
	return 0
}

func encodeYAML(w io.Writer, cfg config.AppConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// writeAtomic fsyncs before the rename; readers never see a partial file.
func writeAtomic(path string, cfg config.AppConfig) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := encodeYAML(pending, cfg); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}

func redactSecrets(cfg *config.AppConfig) {
	for _, s := range []*string{&cfg.Store.DSN, &cfg.Bus.Redis.Password, &cfg.Storage.Token} {
		if *s != "" {
			*s = redacted
		}
	}
}
