package meeting

import (
	"sync"

	"go.aimuz.me/huddle/pcm"
)

// AudioBuffer accumulates native PCM between transcription cycles. The
// capture goroutine appends; the transcription worker drains everything at
// once and may put a short drain back at the front.
type AudioBuffer struct {
	mu     sync.Mutex
	data   []byte
	format pcm.Format
}

// Reset clears the buffer and records the format of the audio that follows.
// It is called once per capture session before the first chunk arrives.
func (b *AudioBuffer) Reset(f pcm.Format) {
	b.mu.Lock()
	b.data = nil
	b.format = f
	b.mu.Unlock()
}

// Append copies p to the end of the buffer.
func (b *AudioBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
}

// Drain moves the whole buffer out and leaves it empty. The caller owns the
// returned bytes.
func (b *AudioBuffer) Drain() ([]byte, pcm.Format) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.data
	b.data = nil
	return data, b.format
}

// PutBack prepends p, ahead of anything appended since it was drained.
func (b *AudioBuffer) PutBack(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(p, b.data...)
	b.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Format returns the format recorded by the last Reset.
func (b *AudioBuffer) Format() pcm.Format {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format
}
