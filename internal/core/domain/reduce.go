package domain

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ReduceToPeaks partitions samples into PeakCount contiguous chunks of
// ceil(len/PeakCount) samples, takes the largest absolute value of each and
// normalizes the result. Inputs shorter than PeakCount leave trailing chunks
// empty, which reduce to 0. NaN samples count as silence.
//
// The function is pure; the worker and the inline fallback both call it.
func ReduceToPeaks(samples []float32) PeakArray {
	raw := make([]float64, PeakCount)
	n := len(samples)
	if n == 0 {
		return PeakArray(raw)
	}

	chunk := (n + PeakCount - 1) / PeakCount
	for i := 0; i < PeakCount; i++ {
		start := i * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}

		var peak float64
		for _, s := range samples[start:end] {
			v := math.Abs(float64(s))
			if v > peak {
				peak = v
			}
		}
		raw[i] = peak
	}

	return Normalize(raw)
}

// Normalize scales raw peaks so the largest becomes 1. An all-zero input
// stays all zero. raw is modified in place and returned as a PeakArray.
func Normalize(raw []float64) PeakArray {
	if len(raw) == 0 {
		return PeakArray{}
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			raw[i] = 0
		}
	}

	top := floats.Max(raw)
	if top <= 0 {
		top = 1
	}
	floats.Scale(1/top, raw)

	// Division can leave the true peak a rounding step away from 1.
	for i, v := range raw {
		if v > 1 {
			raw[i] = 1
		}
	}
	if m := floats.Max(raw); m > 0 && m != 1 {
		raw[floats.MaxIdx(raw)] = 1
	}
	return PeakArray(raw)
}
