// Package services holds the peak analysis orchestration.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

// ErrEmptyURL is returned by Analyze when no audio URL is given.
var ErrEmptyURL = errors.New("service: empty audio url")

// Analyzer coordinates the peak cache, fetcher, decoder and extractor.
// One Analyzer is shared by every Tracker it creates.
type Analyzer struct {
	cache     ports.PeakCache
	fetcher   ports.AudioFetcher
	decoder   ports.AudioDecoder
	extractor ports.PeakExtractor
	timeout   time.Duration
	log       zerolog.Logger

	flight singleflight.Group
}

// Option configures an Analyzer.
type Option func(*Analyzer)

func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// WithPipelineTimeout bounds one fetch, decode and extract run. Zero means
// no bound beyond what the fetcher imposes.
func WithPipelineTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// NewAnalyzer constructs an Analyzer. extractor may be nil, in which case
// every reduction runs inline.
func NewAnalyzer(cache ports.PeakCache, fetcher ports.AudioFetcher, decoder ports.AudioDecoder, extractor ports.PeakExtractor, opts ...Option) *Analyzer {
	a := &Analyzer{
		cache:     cache,
		fetcher:   fetcher,
		decoder:   decoder,
		extractor: extractor,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = noCache{}
	}
	a.log = a.log.With().Str("component", "analyzer").Logger()
	return a
}

// Analyze returns the envelope for url, computing and caching it on a miss.
func (a *Analyzer) Analyze(ctx context.Context, url string) (domain.PeakArray, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if peaks, ok := a.cache.Get(ctx, url); ok {
		return peaks, nil
	}

	peaks, err := a.compute(ctx, url)
	if err != nil {
		return nil, err
	}
	a.cache.Put(context.WithoutCancel(ctx), url, peaks)
	return peaks, nil
}

// compute runs the pipeline for url, sharing one run between concurrent
// callers. The run itself ignores ctx cancellation; ctx only bounds how long
// this caller waits for it.
func (a *Analyzer) compute(ctx context.Context, url string) (domain.PeakArray, error) {
	ch := a.flight.DoChan(url, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if a.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, a.timeout)
			defer cancel()
		}
		return a.run(runCtx, url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			a.log.Debug().Str("url", url).Msg("joined in-flight analysis")
		}
		return res.Val.(domain.PeakArray).Clone(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("service: abandoned %s: %w", url, ctx.Err())
	}
}

func (a *Analyzer) run(ctx context.Context, url string) (domain.PeakArray, error) {
	started := time.Now()

	data, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch audio: %w", err)
	}

	pcm, err := a.decoder.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("service: failed to decode audio: %w", err)
	}

	peaks := a.extract(ctx, pcm.Samples)
	a.log.Debug().
		Str("url", url).
		Int("samples", len(pcm.Samples)).
		Float64("duration_s", pcm.Duration()).
		Dur("took", time.Since(started)).
		Msg("analyzed")
	return peaks, nil
}

// extract prefers the background extractor and reduces inline when it is
// missing or fails. Both paths use domain.ReduceToPeaks.
func (a *Analyzer) extract(ctx context.Context, samples []float32) domain.PeakArray {
	if a.extractor != nil {
		peaks, err := a.extractor.Extract(ctx, samples)
		if err == nil {
			return peaks
		}
		a.log.Warn().Err(err).Msg("extractor failed, reducing inline")
	}
	return domain.ReduceToPeaks(samples)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (domain.PeakArray, bool) { return nil, false }
func (noCache) Put(context.Context, string, domain.PeakArray) {}
