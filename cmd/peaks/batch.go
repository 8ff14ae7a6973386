package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/ewilliams-labs/sessions/internal/core/services"
)

var errNoURLs = errors.New("expected at least one audio URL")

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Analyze many audio URLs concurrently, one tracker per URL",
		ArgsUsage: "<url> [url...]",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Hide the progress bar",
			},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			urls := cmd.Args().Slice()
			if len(urls) == 0 {
				return errNoURLs
			}

			var p *mpb.Progress
			var bar *mpb.Bar
			if !cmd.Bool("quiet") {
				p = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
				bar = p.AddBar(int64(len(urls)),
					mpb.PrependDecorators(
						decor.Name("Analyzing: "),
						decor.CountersNoUnit("%d / %d"),
					),
					mpb.AppendDecorators(
						decor.Percentage(),
						decor.EwmaETA(decor.ET_STYLE_GO, 60),
					),
				)
			}

			results := runBatch(ctx, a.analyzer, urls, func(d time.Duration) {
				if bar != nil {
					bar.EwmaIncrement(d)
				}
			})
			if p != nil {
				p.Wait()
			}

			failed := 0
			for _, r := range results {
				if !r.Analyzed {
					failed++
				}
			}
			a.log.Info().Int("analyzed", len(results)-failed).Int("failed", failed).Msg("batch complete")

			return printPeaks(os.Stdout, cmd.String("format"), results)
		}),
	}
}

// runBatch starts one tracker per URL and collects whatever each one has
// published once its background work is done.
func runBatch(ctx context.Context, analyzer *services.Analyzer, urls []string, done func(time.Duration)) []result {
	results := make([]result, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()

			tr := analyzer.NewTracker()
			tr.Analyze(ctx, url)
			tr.Wait()
			s := tr.State()
			tr.Close()

			results[i] = result{URL: url, Peaks: s.Peaks, Analyzed: s.IsAnalyzed}
			done(time.Since(started))
		}()
	}
	wg.Wait()
	return results
}
