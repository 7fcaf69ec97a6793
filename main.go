// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/danielhkuo/quickly-tally/cliparse"
)

const programName = "quickly-tally"

// Set with -ldflags "-X main.version=..."
var version = "dev"

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), "component", programName)
}

// withConfig adapts a command body to the shared configuration layers.
// Flags are left to cliparse so every command accepts the same ones.
func withConfig(run func(ctx context.Context, cfg cliparse.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cliparse.ParseFlags(args)
		if errors.Is(err, pflag.ErrHelp) {
			return cmd.Help()
		}
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}
}

func main() {
	// Configure max processes with our logger wrapper, toss undo func
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:                programName,
		Short:              "Hierarchical vote tally service",
		Version:            version,
		SilenceUsage:       true,
		DisableFlagParsing: true,
		RunE:               withConfig(serveRun),
	}
	rootCmd.AddCommand(
		serveCommand(),
		recomputeCommand(),
		replayCommand(),
		actorCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
