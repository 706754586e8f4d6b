package pcm

import (
	"encoding/binary"
	"math"
)

// Resample converts interleaved PCM in format src into 16 kHz mono 16-bit
// little-endian PCM.
//
// Channels are averaged after normalising each sample to [-1, 1]: 32-bit
// samples are read as IEEE floats, 16-bit are divided by 32768 and 24-bit are
// sign extended and divided by 8388608. Other depths contribute silence.
// The mono signal is then linearly interpolated onto the 16 kHz grid, clamped
// and scaled by 32767.
//
// An input holding no whole frame yields nil. Resample has no side effects and
// is safe for concurrent use.
func Resample(data []byte, src Format) []byte {
	mono := Mixdown(data, src)
	if len(mono) == 0 || src.SampleRate == 0 {
		return nil
	}

	ratio := float64(TargetSampleRate) / float64(src.SampleRate)
	n := int(float64(len(mono)) * ratio)
	if n == 0 {
		return nil
	}

	out := make([]byte, n*2)
	last := len(mono) - 1
	for i := 0; i < n; i++ {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 > last {
			i0 = last
		}
		i1 := i0 + 1
		if i1 > last {
			i1 = last
		}
		frac := pos - float64(i0)

		v := float32(float64(mono[i0])*(1-frac) + float64(mono[i1])*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(v)))
	}
	return out
}

// Mixdown decodes interleaved PCM into one normalised float per frame by
// averaging all channels. Trailing bytes that do not fill a frame are ignored.
func Mixdown(data []byte, src Format) []float32 {
	bps := int(src.BitsPerSample / 8)
	frameSize := src.FrameSize()
	frames := src.Frames(len(data))
	if frames == 0 {
		return nil
	}

	mono := make([]float32, frames)
	channels := float32(src.Channels)
	for i := range mono {
		frame := data[i*frameSize : (i+1)*frameSize]
		var sum float32
		for ch := 0; ch < int(src.Channels); ch++ {
			sum += decodeSample(frame[ch*bps:(ch+1)*bps], src.BitsPerSample)
		}
		mono[i] = sum / channels
	}
	return mono
}

func decodeSample(b []byte, bits uint16) float32 {
	switch bits {
	case 32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case 16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float32(v) / 8388608
	default:
		return 0
	}
}

func toInt16(v float32) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// Samples reinterprets 16-bit little-endian PCM as int16 values.
func Samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// RMS returns the root mean square level of 16-bit PCM, normalised to [0, 1].
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
