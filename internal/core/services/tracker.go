package services

import (
	"context"
	"errors"
	"sync"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
)

// Tracker is one observer of analysis state, typically a single waveform
// view. Each call to Analyze supersedes the previous one: a result that
// arrives for a superseded request is neither published nor cached.
type Tracker struct {
	a *Analyzer

	mu      sync.Mutex
	gen     uint64
	closed  bool
	state   domain.State
	updates chan domain.State

	wg sync.WaitGroup
}

// NewTracker creates an observer bound to a.
func (a *Analyzer) NewTracker() *Tracker {
	return &Tracker{a: a, updates: make(chan domain.State, 1)}
}

// Analyze asks for the envelope of url. A cache hit is published before
// Analyze returns. A miss publishes an empty, incomplete state and resolves
// in the background. An empty url does nothing beyond abandoning any
// pending request.
func (t *Tracker) Analyze(ctx context.Context, url string) {
	if url == "" {
		t.mu.Lock()
		t.gen++
		t.mu.Unlock()
		return
	}

	peaks, hit := t.a.cache.Get(ctx, url)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.gen++
	gen := t.gen

	if hit {
		t.publishLocked(domain.State{URL: url, Peaks: peaks, IsAnalyzed: true})
		return
	}
	t.publishLocked(domain.State{URL: url})

	t.wg.Add(1)
	go t.resolve(ctx, url, gen)
}

func (t *Tracker) resolve(ctx context.Context, url string, gen uint64) {
	defer t.wg.Done()

	peaks, err := t.a.compute(ctx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			t.a.log.Debug().Str("url", url).Msg("analysis abandoned")
			return
		}
		t.a.log.Warn().Err(err).Str("url", url).Msg("analysis failed")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.gen != gen {
		t.a.log.Debug().Str("url", url).Msg("discarding superseded result")
		return
	}
	t.publishLocked(domain.State{URL: url, Peaks: peaks, IsAnalyzed: true})
	t.a.cache.Put(context.WithoutCancel(ctx), url, peaks)
}

// publishLocked replaces the current state and offers it on the updates
// channel, dropping any value the observer has not read yet.
func (t *Tracker) publishLocked(s domain.State) {
	s.Peaks = s.Peaks.Clone()
	t.state = s

	out := s
	out.Peaks = s.Peaks.Clone()
	select {
	case <-t.updates:
	default:
	}
	select {
	case t.updates <- out:
	default:
	}
}

// State returns a copy of the latest published state.
func (t *Tracker) State() domain.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.Peaks = s.Peaks.Clone()
	return s
}

// Updates delivers published states, latest wins. It is closed by Close.
func (t *Tracker) Updates() <-chan domain.State {
	return t.updates
}

// Close abandons any pending request and stops publication.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.gen++
	close(t.updates)
}

// Wait blocks until every background resolution started by this tracker
// has finished, whether or not its result was used.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
