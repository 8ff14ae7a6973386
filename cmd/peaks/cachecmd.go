package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the peak cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cache keys, oldest first",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
					for _, k := range a.cache.Keys(ctx) {
						fmt.Fprintln(os.Stdout, k)
					}
					return nil
				}),
			},
			{
				Name:  "purge",
				Usage: "Remove every cached envelope",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
					n, err := a.cache.Purge(ctx)
					if err != nil {
						return fmt.Errorf("purge failed: %w", err)
					}
					a.log.Info().Int("removed", n).Msg("cache purged")
					return nil
				}),
			},
		},
	}
}
