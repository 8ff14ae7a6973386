package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appl := &cli.Command{
		Name:  "peaks",
		Usage: "Compute and cache waveform envelopes for Sessions audio demos",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			analyzeCommand(),
			batchCommand(),
			cacheCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("failed to run")
		os.Exit(1)
	}
}
