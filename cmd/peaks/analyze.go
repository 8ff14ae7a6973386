package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var errInvalidArgCount = errors.New("expected exactly one argument: audio URL")

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Print the peak envelope of one audio URL",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			formatFlag(),
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
			}
			url := cmd.Args().First()

			peaks, err := a.analyzer.Analyze(ctx, url)
			if err != nil {
				return err
			}
			return printPeaks(os.Stdout, cmd.String("format"), []result{{URL: url, Peaks: peaks, Analyzed: true}})
		}),
	}
}
