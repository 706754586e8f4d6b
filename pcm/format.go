// Package pcm converts captured linear PCM into the canonical format
// expected by speech-to-text backends: 16 kHz, mono, 16-bit little endian.
package pcm

import (
	"errors"
	"fmt"
)

// Target format produced by Resample.
const (
	TargetSampleRate    = 16000
	TargetChannels      = 1
	TargetBitsPerSample = 16
)

// ErrUnsupportedFormat is returned by Format.Validate for sample layouts the
// resampler cannot decode. Resample itself degrades such samples to silence.
var ErrUnsupportedFormat = errors.New("pcm: unsupported format")

// Format describes interleaved linear PCM as negotiated with the audio engine.
type Format struct {
	SampleRate     uint32 `json:"sampleRate"`
	BitsPerSample  uint16 `json:"bitsPerSample"`
	Channels       uint16 `json:"channels"`
	BlockAlign     uint32 `json:"blockAlign"`
	AvgBytesPerSec uint32 `json:"avgBytesPerSec"`
	IsFloat        bool   `json:"isFloat"`
}

// Target returns the canonical 16 kHz mono 16-bit format.
func Target() Format {
	return NewFormat(TargetSampleRate, TargetBitsPerSample, TargetChannels, false)
}

// NewFormat builds a Format and derives BlockAlign and AvgBytesPerSec.
func NewFormat(sampleRate uint32, bitsPerSample, channels uint16, isFloat bool) Format {
	blockAlign := uint32(channels) * uint32(bitsPerSample/8)
	return Format{
		SampleRate:     sampleRate,
		BitsPerSample:  bitsPerSample,
		Channels:       channels,
		BlockAlign:     blockAlign,
		AvgBytesPerSec: sampleRate * blockAlign,
		IsFloat:        isFloat,
	}
}

// FrameSize returns the number of bytes per interleaved frame.
func (f Format) FrameSize() int {
	return int(f.BitsPerSample/8) * int(f.Channels)
}

// Frames returns how many whole frames n bytes hold.
func (f Format) Frames(n int) int {
	fs := f.FrameSize()
	if fs == 0 {
		return 0
	}
	return n / fs
}

// Duration returns the playback length of n bytes in seconds.
func (f Format) Duration(n int) float64 {
	if f.AvgBytesPerSec == 0 {
		return 0
	}
	return float64(n) / float64(f.AvgBytesPerSec)
}

// Validate reports whether the resampler can decode f.
func (f Format) Validate() error {
	switch {
	case f.SampleRate == 0:
		return fmt.Errorf("%w: zero sample rate", ErrUnsupportedFormat)
	case f.Channels == 0:
		return fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}
	switch f.BitsPerSample {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, f.BitsPerSample)
	}
}

func (f Format) String() string {
	s := fmt.Sprintf("%d Hz, %d-bit, %d ch", f.SampleRate, f.BitsPerSample, f.Channels)
	if f.IsFloat {
		s += " (float)"
	}
	return s
}
