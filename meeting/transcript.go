package meeting

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Transcript is the rolling meeting transcript. Its length never exceeds the
// configured maximum; the oldest text is dropped a whole word at a time.
type Transcript struct {
	mu   sync.Mutex
	text string
	max  int
}

// NewTranscript returns an empty transcript holding at most max bytes.
func NewTranscript(max int) *Transcript {
	return &Transcript{max: max}
}

// Append adds s after a single space and trims the front to the maximum.
// It returns the new length.
func (t *Transcript) Append(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return t.Len()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.text == "" {
		t.text = s
	} else {
		t.text += " " + s
	}
	t.text = trimToWords(t.text, t.max)
	return len(t.text)
}

// String returns a snapshot of the transcript.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Len returns the transcript length in bytes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.text)
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.text = ""
	t.mu.Unlock()
}

// trimToWords keeps the last max bytes of s, advanced to the next word start
// so no partial word survives at the front. A tail with no space at all is
// kept as is, starting at the nearest rune boundary.
func trimToWords(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}

	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	tail := s[cut:]

	if s[cut-1] != ' ' {
		i := strings.IndexByte(tail, ' ')
		if i < 0 {
			return tail
		}
		tail = tail[i+1:]
	}
	return strings.TrimLeft(tail, " ")
}
