// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/config"
	"github.com/DarrenJCoxon/devpulse-sub002/lib/process"
	"github.com/DarrenJCoxon/devpulse-sub002/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("devpulse", pflag.ContinueOnError)
	showVersion := flags.Bool("version", false, "print version information and exit")
	configPath := flags.String("config", "", "configuration file (YAML or JSONC); overrides DEVPULSE_CONFIG")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: devpulse [flags] <serve|status>\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if *showVersion {
		version.Print("devpulse")
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		return fmt.Errorf("devpulse: a subcommand is required")
	}

	switch args[0] {
	case "serve":
		return runServe(cfg)
	case "status":
		return runStatus(cfg)
	default:
		flags.Usage()
		return fmt.Errorf("devpulse: unknown subcommand %q", args[0])
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
