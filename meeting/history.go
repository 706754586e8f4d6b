package meeting

import "sync"

// MaxHistory is the number of question/answer exchanges replayed to the
// chat model.
const MaxHistory = 10

// Exchange is one answered question.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// History is the bounded conversation memory used for follow-up questions.
type History struct {
	mu    sync.Mutex
	items []Exchange
}

// Add appends an exchange, evicting the oldest beyond MaxHistory.
func (h *History) Add(question, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, Exchange{Question: question, Answer: answer})
	if over := len(h.items) - MaxHistory; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

// Snapshot returns the exchanges in submission order.
func (h *History) Snapshot() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of stored exchanges.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Clear forgets all exchanges.
func (h *History) Clear() {
	h.mu.Lock()
	h.items = nil
	h.mu.Unlock()
}
