package pcm

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// EncodeWAV wraps 16-bit little-endian PCM in f's layout into a RIFF/WAVE
// container.
func EncodeWAV(data []byte, f Format) ([]byte, error) {
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: wav encoding needs 16-bit input, got %d", ErrUnsupportedFormat, f.BitsPerSample)
	}
	if f.Channels == 0 || f.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}

	samples := Samples(data)
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}

	var out memFile
	enc := wav.NewEncoder(&out, int(f.SampleRate), int(f.BitsPerSample), int(f.Channels), wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: int(f.Channels), SampleRate: int(f.SampleRate)},
		Data:           ints,
		SourceBitDepth: int(f.BitsPerSample),
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.buf, nil
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes once all samples are written.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("pcm: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("pcm: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
