// Package worker runs peak extraction on background goroutines reached only
// through message passing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

var (
	// ErrUnavailable means the request never reached a worker.
	ErrUnavailable = errors.New("worker: unavailable")
	// ErrExtraction means the reduction itself failed.
	ErrExtraction = errors.New("worker: extraction failed")
	// ErrCorrelation means a reply did not match its request.
	ErrCorrelation = errors.New("worker: reply does not match request")
)

// Reducer turns PCM samples into a normalized envelope.
type Reducer func(samples []float32) domain.PeakArray

type request struct {
	id      uuid.UUID
	samples []float32
	reply   chan result
}

type result struct {
	id    uuid.UUID
	peaks domain.PeakArray
	err   error
}

// Pool manages background workers for peak extraction. Goroutines are
// started on the first Extract and reused until Stop.
type Pool struct {
	workers int
	jobs    chan request
	reduce  Reducer
	log     zerolog.Logger

	start   sync.Once
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

var _ ports.PeakExtractor = (*Pool)(nil)

// Option configures a Pool.
type Option func(*Pool)

// WithReducer replaces domain.ReduceToPeaks, mainly for tests.
func WithReducer(fn Reducer) Option {
	return func(p *Pool) {
		if fn != nil {
			p.reduce = fn
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// NewPool creates a worker pool with the given worker count and queue size.
func NewPool(workers int, queueSize int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		workers: workers,
		jobs:    make(chan request, queueSize),
		reduce:  domain.ReduceToPeaks,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("component", "worker").Logger()
	return p
}

func (p *Pool) launch() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for req := range p.jobs {
				req.reply <- p.process(req)
			}
		}()
	}
	p.log.Debug().Int("workers", p.workers).Msg("started")
}

// Stop closes the queue and waits for queued requests to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Extract hands samples to a worker and waits for its reply. The caller
// gives up ownership of samples.
//
// Submission does not block: a stopped pool or a full queue returns
// ErrUnavailable so the caller can reduce inline instead.
func (p *Pool) Extract(ctx context.Context, samples []float32) (domain.PeakArray, error) {
	req := request{
		id:      uuid.New(),
		samples: samples,
		reply:   make(chan result, 1),
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, fmt.Errorf("%w: pool stopped", ErrUnavailable)
	}
	p.start.Do(p.launch)
	select {
	case p.jobs <- req:
	default:
		p.mu.RUnlock()
		p.log.Warn().Str("request", req.id.String()).Msg("queue full, rejecting request")
		return nil, fmt.Errorf("%w: queue full", ErrUnavailable)
	}
	p.mu.RUnlock()

	select {
	case res := <-req.reply:
		if res.id != req.id {
			return nil, fmt.Errorf("%w: sent %s, got %s", ErrCorrelation, req.id, res.id)
		}
		return res.peaks, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (p *Pool) process(req request) (res result) {
	res.id = req.id
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Str("request", req.id.String()).Interface("panic", r).Msg("reduction panicked")
			res.peaks = nil
			res.err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	peaks := p.reduce(req.samples)
	if len(peaks) != domain.PeakCount {
		res.err = fmt.Errorf("%w: got %d peaks", ErrExtraction, len(peaks))
		return res
	}
	res.peaks = peaks
	p.log.Debug().Str("request", req.id.String()).Int("samples", len(req.samples)).Msg("processed")
	return res
}
