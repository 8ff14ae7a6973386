package ports

import (
	"context"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
)

// AudioFetcher loads the raw bytes behind an audio URL.
type AudioFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AudioDecoder turns compressed audio into first-channel PCM.
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte) (domain.PCM, error)
}

// PeakExtractor reduces PCM to a normalized envelope off the caller's
// goroutine. The samples slice is handed over and must not be reused.
type PeakExtractor interface {
	Extract(ctx context.Context, samples []float32) (domain.PeakArray, error)
}

// PeakCache memoizes envelopes by audio URL. Implementations never fail:
// errors degrade to a miss on Get and are dropped on Put.
type PeakCache interface {
	Get(ctx context.Context, url string) (domain.PeakArray, bool)
	Put(ctx context.Context, url string, peaks domain.PeakArray)
}
