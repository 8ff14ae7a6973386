// Package domain holds the peak envelope types and the pure reduction shared
// by every execution path that produces them.
package domain

import (
	"errors"
	"fmt"
	"math"
)

// PeakCount is the fixed number of buckets in every PeakArray.
const PeakCount = 100

var (
	ErrNotFound     = errors.New("domain: not found")
	ErrInvalidPeaks = errors.New("domain: invalid peak array")
	ErrEmptySamples = errors.New("domain: no samples")
)

// PeakArray is the normalized amplitude envelope of one audio channel.
// Index i covers roughly the fraction i/PeakCount of the track.
type PeakArray []float64

// Clone returns an independent copy so callers cannot mutate shared state.
func (p PeakArray) Clone() PeakArray {
	if p == nil {
		return nil
	}
	out := make(PeakArray, len(p))
	copy(out, p)
	return out
}

// Max returns the largest element, or 0 for an empty array.
func (p PeakArray) Max() float64 {
	var m float64
	for _, v := range p {
		if v > m {
			m = v
		}
	}
	return m
}

// Validate reports whether p satisfies the envelope invariant: exactly
// PeakCount finite values in [0,1], with a peak of exactly 1 unless every
// value is 0.
func (p PeakArray) Validate() error {
	if len(p) != PeakCount {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidPeaks, len(p), PeakCount)
	}
	for i, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: element %d out of range: %v", ErrInvalidPeaks, i, v)
		}
	}
	if m := p.Max(); m != 0 && m != 1 {
		return fmt.Errorf("%w: not normalized, max %v", ErrInvalidPeaks, m)
	}
	return nil
}

// PCM is decoded audio reduced to its first channel.
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the buffer in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// State is what an observing caller sees for the URL it last asked about.
type State struct {
	URL        string
	Peaks      PeakArray
	IsAnalyzed bool
}
