// Package speech speaks assistant responses aloud without blocking the caller.
package speech

import (
	"context"
	"log/slog"
	"sync"
)

// Speaker is the speech-output collaborator. Speak never waits for playback.
type Speaker interface {
	Speak(text string)
	Stop()
}

// Engine renders one utterance and returns when playback has finished or ctx
// is cancelled.
type Engine interface {
	Say(ctx context.Context, text string) error
}

// Async plays utterances one at a time on its own goroutine. A new Speak
// interrupts the current utterance; only the latest text is kept.
type Async struct {
	engine Engine

	mu       sync.Mutex
	next     *string
	cancel   context.CancelFunc
	speaking bool
	closed   bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewAsync starts the playback goroutine for engine.
func NewAsync(engine Engine) *Async {
	a := &Async{
		engine: engine,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Speak replaces any pending or playing utterance with text.
func (a *Async) Speak(text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.next = &text
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Stop interrupts playback and drops any pending utterance.
func (a *Async) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = nil
	if a.cancel != nil {
		a.cancel()
	}
}

// Speaking reports whether an utterance is playing.
func (a *Async) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaking
}

// Close stops playback and waits for the playback goroutine to exit.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Stop()
	close(a.quit)
	<-a.done
	return nil
}

func (a *Async) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.quit:
			return
		case <-a.wake:
		}

		for {
			a.mu.Lock()
			if a.next == nil || a.closed {
				a.mu.Unlock()
				break
			}
			text := *a.next
			a.next = nil
			ctx, cancel := context.WithCancel(context.Background())
			a.cancel = cancel
			a.speaking = true
			a.mu.Unlock()

			err := a.engine.Say(ctx, text)
			interrupted := ctx.Err() != nil
			cancel()

			a.mu.Lock()
			a.cancel = nil
			a.speaking = false
			a.mu.Unlock()

			if err != nil && !interrupted {
				slog.Warn("speech output failed", "error", err)
			}
		}
	}
}
