package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
)

func ramp(n int, scale float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = scale * float32(i) / float32(n)
	}
	return s
}

func TestPool_Extract(t *testing.T) {
	p := NewPool(1, 4)
	defer p.Stop()

	samples := ramp(5000, 0.8)
	want := domain.ReduceToPeaks(ramp(5000, 0.8))

	got, err := p.Extract(context.Background(), samples)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("worker result differs from inline reduction")
	}
}

func TestPool_ExtractErrors(t *testing.T) {
	tests := []struct {
		name    string
		pool    func() *Pool
		wantErr error
	}{
		{
			name: "panicking reducer reports extraction error",
			pool: func() *Pool {
				return NewPool(1, 1, WithReducer(func([]float32) domain.PeakArray {
					panic("boom")
				}))
			},
			wantErr: ErrExtraction,
		},
		{
			name: "short result reports extraction error",
			pool: func() *Pool {
				return NewPool(1, 1, WithReducer(func([]float32) domain.PeakArray {
					return domain.PeakArray{1}
				}))
			},
			wantErr: ErrExtraction,
		},
		{
			name: "stopped pool is unavailable",
			pool: func() *Pool {
				p := NewPool(1, 1)
				p.Stop()
				return p
			},
			wantErr: ErrUnavailable,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p := tc.pool()
			defer p.Stop()

			_, err := p.Extract(context.Background(), ramp(100, 1))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPool_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	p := NewPool(1, 1, WithReducer(func(s []float32) domain.PeakArray {
		started <- struct{}{}
		<-release
		return domain.ReduceToPeaks(s)
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Extract(context.Background(), ramp(10, 1))
	}()
	<-started

	// Worker is busy; this one fills the single queue slot.
	wg.Add(1)
	queued := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := p.Extract(context.Background(), ramp(10, 1))
		queued <- err
	}()

	deadline := time.After(2 * time.Second)
	for len(p.jobs) == 0 {
		select {
		case <-deadline:
			t.Fatalf("second request never queued")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := p.Extract(context.Background(), ramp(10, 1)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	close(release)
	<-started
	wg.Wait()
	if err := <-queued; err != nil {
		t.Fatalf("queued request failed: %v", err)
	}
	p.Stop()
}

func TestPool_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	p := NewPool(1, 1, WithReducer(func(s []float32) domain.PeakArray {
		<-release
		return domain.ReduceToPeaks(s)
	}))
	defer p.Stop()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Extract(ctx, ramp(10, 1))
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unavailable deadline error, got %v", err)
	}
}

// Concurrent requests must each get the reply computed from their own input.
func TestPool_ConcurrentRequestsAreCorrelated(t *testing.T) {
	p := NewPool(2, 64)
	defer p.Stop()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A single spike whose bucket identifies the request.
			samples := make([]float32, 1000)
			samples[i*10] = 0.5
			got, err := p.Extract(context.Background(), samples)
			if err != nil {
				errs <- err
				return
			}
			if got[i] != 1 || got.Max() != 1 {
				errs <- errors.New("reply belongs to another request")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
