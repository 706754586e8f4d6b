package pcm

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestResampleSilence(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		frames int
	}{
		{"48k_stereo_float", NewFormat(48000, 32, 2, true), 48000},
		{"44k_stereo_16", NewFormat(44100, 16, 2, false), 44100},
		{"96k_mono_24", NewFormat(96000, 24, 1, false), 9600},
		{"16k_mono_16", NewFormat(16000, 16, 1, false), 1600},
		{"8k_6ch_32", NewFormat(8000, 32, 6, true), 800},
		{"22k_single_frame", NewFormat(22050, 16, 2, false), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]byte, tt.frames*tt.format.FrameSize())
			out := Resample(in, tt.format)

			want := int(math.Floor(float64(tt.frames) * TargetSampleRate / float64(tt.format.SampleRate)))
			got := len(out) / 2
			if got < want-1 || got > want+1 {
				t.Fatalf("got %d samples, want %d (±1)", got, want)
			}
			for i, b := range out {
				if b != 0 {
					t.Fatalf("byte %d = %d, want silence", i, b)
				}
			}
		})
	}
}

func TestResampleEmpty(t *testing.T) {
	f := NewFormat(48000, 32, 2, true)
	if out := Resample(nil, f); out != nil {
		t.Fatalf("nil input: got %d bytes", len(out))
	}
	// Fewer bytes than one frame hold no frames at all.
	if out := Resample(make([]byte, 7), f); out != nil {
		t.Fatalf("partial frame: got %d bytes", len(out))
	}
	if out := Resample(make([]byte, 64), Format{SampleRate: 48000, BitsPerSample: 16}); out != nil {
		t.Fatalf("zero channels: got %d bytes", len(out))
	}
}

func TestResamplePreservesFrequency(t *testing.T) {
	const (
		rate = 44100
		freq = 440.0
		amp  = 0.5
	)
	f := NewFormat(rate, 32, 2, true)
	in := make([]byte, rate*f.FrameSize())
	for i := 0; i < rate; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
		bits := math.Float32bits(v)
		binary.LittleEndian.PutUint32(in[i*8:], bits)
		binary.LittleEndian.PutUint32(in[i*8+4:], bits)
	}

	out := Samples(Resample(in, f))
	if len(out) < TargetSampleRate-1 {
		t.Fatalf("got %d samples, want ~%d", len(out), TargetSampleRate)
	}

	crossings := 0
	for i := 1; i < len(out); i++ {
		if (out[i-1] < 0) != (out[i] < 0) {
			crossings++
		}
	}
	if want := int(2 * freq); crossings < want-4 || crossings > want+4 {
		t.Errorf("zero crossings = %d, want about %d", crossings, want)
	}

	var maxErr float64
	for i, s := range out {
		ideal := amp * math.Sin(2*math.Pi*freq*float64(i)/TargetSampleRate)
		if d := math.Abs(float64(s)/32767 - ideal); d > maxErr {
			maxErr = d
		}
	}
	if maxErr > 0.002 {
		t.Errorf("max interpolation error = %f, want <= 0.002", maxErr)
	}
}

func TestResampleDecoding(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		frame  []byte
		want   int16
	}{
		{
			name:   "int16_half_scale",
			format: NewFormat(16000, 16, 1, false),
			frame:  le16(16384),
			want:   toInt16(0.5),
		},
		{
			name:   "int24_negative_sign_extended",
			format: NewFormat(16000, 24, 1, false),
			frame:  []byte{0x00, 0x00, 0xC0}, // -0.5
			want:   toInt16(-0.5),
		},
		{
			name:   "float_stereo_average",
			format: NewFormat(16000, 32, 2, true),
			frame:  append(leFloat(1.0), leFloat(0.0)...),
			want:   toInt16(0.5),
		},
		{
			name:   "float_clamped",
			format: NewFormat(16000, 32, 1, true),
			frame:  leFloat(3.0),
			want:   32767,
		},
		{
			name:   "unsupported_depth_is_silence",
			format: NewFormat(16000, 8, 1, false),
			frame:  []byte{0x7F},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Two identical frames keep the interpolation exact.
			in := append(append([]byte{}, tt.frame...), tt.frame...)
			out := Samples(Resample(in, tt.format))
			if len(out) != 2 {
				t.Fatalf("got %d samples, want 2", len(out))
			}
			if out[0] != tt.want {
				t.Errorf("sample = %d, want %d", out[0], tt.want)
			}
		})
	}
}

func TestResampleLastIndexClamped(t *testing.T) {
	// 3 frames upsampled from 8 kHz produce 6 targets; the final target reads
	// past the last source frame and must reuse it instead.
	f := NewFormat(8000, 16, 1, false)
	in := append(append(le16(0), le16(0)...), le16(32767)...)
	out := Samples(Resample(in, f))
	if len(out) != 6 {
		t.Fatalf("got %d samples, want 6", len(out))
	}
	if out[5] != out[4] {
		t.Errorf("last sample %d should equal clamped source %d", out[5], out[4])
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f", got)
	}
	if got := RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS(silence) = %f", got)
	}
	loud := append(le16(16384), le16(-16384)...)
	if got := RMS(loud); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(±0.5) = %f, want 0.5", got)
	}
}

func TestFormatValidate(t *testing.T) {
	if err := NewFormat(48000, 32, 2, true).Validate(); err != nil {
		t.Errorf("float32 stereo: %v", err)
	}
	if err := NewFormat(48000, 8, 2, false).Validate(); err == nil {
		t.Error("8-bit should be unsupported")
	}
	if err := (Format{BitsPerSample: 16, Channels: 1}).Validate(); err == nil {
		t.Error("zero rate should be unsupported")
	}
}

func le16(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func leFloat(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func TestMixdownIgnoresPartialFrame(t *testing.T) {
	f := NewFormat(48000, 16, 2, false)
	data := make([]byte, 4*3+3) // three stereo frames and a stray fragment
	if got := f.Frames(len(data)); got != 3 {
		t.Fatalf("Frames = %d, want 3", got)
	}
	if got := len(Mixdown(data, f)); got != 3 {
		t.Errorf("Mixdown frames = %d, want 3", got)
	}
}
