// Package decode turns compressed audio demos into first-channel PCM.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/farcloser/primordium/fault"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/ewilliams-labs/sessions/internal/core/domain"
	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

var (
	ErrUnsupportedFormat = errors.New("decode: unsupported audio format")
	ErrNoSamples         = errors.New("decode: audio contains no samples")
)

// Format identifies a container recognized by Sniff.
type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
)

// Sniff inspects the leading bytes of data.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decoder dispatches on the sniffed container format.
type Decoder struct{}

var _ ports.AudioDecoder = Decoder{}

func NewDecoder() Decoder { return Decoder{} }

func (Decoder) Decode(ctx context.Context, data []byte) (domain.PCM, error) {
	var (
		pcm domain.PCM
		err error
	)
	switch f := Sniff(data); f {
	case FormatMP3:
		pcm, err = decodeMP3(ctx, data)
	case FormatWAV:
		pcm, err = decodeWAV(data)
	default:
		return domain.PCM{}, ErrUnsupportedFormat
	}
	if err != nil {
		return domain.PCM{}, err
	}
	if len(pcm.Samples) == 0 {
		return domain.PCM{}, ErrNoSamples
	}
	return pcm, nil
}

// go-mp3 always yields 16-bit little-endian stereo frames.
const mp3FrameBytes = 4

func decodeMP3(ctx context.Context, data []byte) (domain.PCM, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return domain.PCM{}, fmt.Errorf("decode: mp3: %w: %w", fault.ErrReadFailure, err)
	}

	hint := decoder.Length() / mp3FrameBytes
	if hint < 0 {
		hint = 0
	}
	samples := make([]float32, 0, int(hint))
	buf := make([]byte, 4096)
	var carry []byte

	for {
		if err := ctx.Err(); err != nil {
			return domain.PCM{}, err
		}
		n, err := decoder.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if len(carry) > 0 {
				chunk = append(carry, chunk...)
				carry = nil
			}
			whole := len(chunk) - len(chunk)%mp3FrameBytes
			for i := 0; i < whole; i += mp3FrameBytes {
				left := int16(chunk[i]) | int16(chunk[i+1])<<8
				samples = append(samples, float32(left)/32768)
			}
			if whole < len(chunk) {
				carry = append([]byte{}, chunk[whole:]...)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return domain.PCM{}, fmt.Errorf("decode: mp3 read: %w: %w", fault.ErrReadFailure, err)
		}
	}

	return domain.PCM{Samples: samples, SampleRate: decoder.SampleRate()}, nil
}

func decodeWAV(data []byte) (domain.PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return domain.PCM{}, fmt.Errorf("decode: wav: %w: invalid header", fault.ErrReadFailure)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return domain.PCM{}, fmt.Errorf("decode: wav: %w: %w", fault.ErrReadFailure, err)
	}

	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels < 1 {
		channels = 1
	}

	depth := int(d.BitDepth)
	if buf.SourceBitDepth > 0 {
		depth = buf.SourceBitDepth
	}
	if depth < 8 || depth > 32 {
		return domain.PCM{}, fmt.Errorf("%w: wav bit depth %d", ErrUnsupportedFormat, depth)
	}

	// 8-bit WAV is unsigned; wider depths are signed.
	offset := 0
	if depth == 8 {
		offset = 128
	}
	scale := float32(int64(1) << (depth - 1))

	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i]-offset)/scale)
	}

	return domain.PCM{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}
