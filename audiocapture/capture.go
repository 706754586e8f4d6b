// Package audiocapture captures the system's audio output mix (loopback)
// and delivers it as raw PCM chunks in the engine's native format.
package audiocapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/huddle/pcm"
)

// ErrUnsupported is returned on platforms without a loopback backend.
var ErrUnsupported = errors.New("audiocapture: loopback capture not supported on this platform")

// ErrClosed is returned when starting a Capture that has been closed.
var ErrClosed = errors.New("audiocapture: capture closed")

// DeviceError reports that the platform audio session is unavailable or
// rejected the loopback configuration. It is not retryable without opening a
// new Capture.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return "audiocapture: " + e.Op + ": " + e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }

// StartError reports that the platform stream failed to start.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return "audiocapture: start stream: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

// Chunk is one drained platform buffer. The receiving handler owns Data.
type Chunk struct {
	Data      []byte
	Frames    uint32
	Timestamp uint64 // platform monotonic ticks (QPC on Windows)
	Silent    bool   // engine flagged the buffer as silence; Data is zero filled
}

// Handler receives captured chunks on the capture goroutine. It must not
// block.
type Handler func(Chunk)

// ErrorHandler receives errors raised on the capture goroutine.
type ErrorHandler func(error)

// Config holds configuration for audio capture.
type Config struct {
	BufferDuration time.Duration // Engine buffer size, default 100ms
	WaitTimeout    time.Duration // Bound on a single buffer-ready wait, default 100ms
	DeviceID       string        // Render endpoint id; empty selects the default device
	Polling        bool          // Poll instead of waiting on the buffer-ready event
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		BufferDuration: 100 * time.Millisecond,
		WaitTimeout:    100 * time.Millisecond,
	}
}

const pollInterval = 10 * time.Millisecond

// Capture owns one platform audio session in loopback mode. Start and Stop
// may be called any number of times; each Start spawns exactly one capture
// goroutine and Stop joins it.
type Capture struct {
	cfg    Config
	ep     endpoint
	format pcm.Format

	mu        sync.Mutex
	capturing bool
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	stopErr   error
}

// New opens the platform audio session and negotiates its current mix format.
func New(cfg Config) (*Capture, error) {
	cfg = withDefaults(cfg)
	ep, err := newEndpoint(cfg)
	if err != nil {
		return nil, &DeviceError{Op: "open loopback endpoint", Err: err}
	}
	c := newCapture(cfg, ep)
	slog.Info("audio capture initialized", "format", c.format.String(), "device", cfg.DeviceID)
	return c, nil
}

func newCapture(cfg Config, ep endpoint) *Capture {
	return &Capture{
		cfg:    withDefaults(cfg),
		ep:     ep,
		format: ep.format(),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = 100 * time.Millisecond
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 100 * time.Millisecond
	}
	return cfg
}

// Format returns the native format negotiated at New. It never changes.
func (c *Capture) Format() pcm.Format {
	return c.format
}

// Start begins delivering audio to h. Errors raised while capturing go to
// onError, which may be nil. Calling Start while capturing is a no-op.
func (c *Capture) Start(h Handler, onError ErrorHandler) error {
	if h == nil {
		return errors.New("audiocapture: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.capturing {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	ready := make(chan error, 1)
	c.stopErr = nil

	go c.run(h, onError, stop, done, ready)

	if err := <-ready; err != nil {
		<-done
		return &StartError{Err: err}
	}

	c.stop = stop
	c.done = done
	c.capturing = true
	slog.Info("audio capture started")
	return nil
}

// Stop signals the capture goroutine, wakes it if it is waiting for audio,
// joins it and halts the platform stream. No handler call happens after Stop
// returns. Stop is idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}

	close(c.stop)
	c.ep.wake()
	<-c.done

	c.capturing = false
	c.stop = nil
	c.done = nil
	slog.Info("audio capture stopped")
	return c.stopErr
}

// IsCapturing reports whether a capture goroutine is running.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close stops capturing and releases the platform session.
func (c *Capture) Close() error {
	err := c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return err
	}
	c.closed = true
	if cerr := c.ep.close(); cerr != nil && err == nil {
		err = fmt.Errorf("close endpoint: %w", cerr)
	}
	return err
}

func (c *Capture) run(h Handler, onError ErrorHandler, stop <-chan struct{}, done chan<- struct{}, ready chan<- error) {
	defer close(done)

	detach, err := c.ep.attach()
	if err != nil {
		ready <- fmt.Errorf("attach capture thread: %w", err)
		return
	}
	defer detach()

	if err := c.ep.start(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	c.loop(h, onError, stop)

	if err := c.ep.stop(); err != nil {
		c.stopErr = fmt.Errorf("stop stream: %w", err)
	}
}

func (c *Capture) loop(h Handler, onError ErrorHandler, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if c.cfg.Polling {
			c.drain(h, onError)
			if !sleep(stop, pollInterval) {
				return
			}
			continue
		}

		signaled, err := c.ep.wait(c.cfg.WaitTimeout)
		select {
		case <-stop:
			return
		default:
		}
		if err != nil {
			c.report(onError, fmt.Errorf("wait for audio: %w", err))
			if !sleep(stop, c.cfg.WaitTimeout) {
				return
			}
			continue
		}
		if signaled {
			c.drain(h, onError)
		}
	}
}

// drain delivers every packet currently queued by the engine.
func (c *Capture) drain(h Handler, onError ErrorHandler) {
	for {
		p, ok, err := c.ep.read()
		if err != nil {
			c.report(onError, fmt.Errorf("read capture buffer: %w", err))
			return
		}
		if !ok {
			return
		}

		if p.frames > 0 {
			c.deliver(h, onError, c.packChunk(p))
		}

		if err := c.ep.release(p.frames); err != nil {
			c.report(onError, fmt.Errorf("release capture buffer: %w", err))
			return
		}
	}
}

// packChunk copies a packet out of engine memory. Silent packets become zero
// filled chunks of the same length so downstream timing stays correct.
func (c *Capture) packChunk(p packet) Chunk {
	size := int(p.frames) * int(c.format.BlockAlign)
	chunk := Chunk{
		Data:      make([]byte, size),
		Frames:    p.frames,
		Timestamp: p.timestamp,
		Silent:    p.silent,
	}
	if !p.silent {
		copy(chunk.Data, p.data)
	}
	return chunk
}

func (c *Capture) deliver(h Handler, onError ErrorHandler, chunk Chunk) {
	defer func() {
		if r := recover(); r != nil {
			c.report(onError, fmt.Errorf("audio handler panic: %v", r))
		}
	}()
	h(chunk)
}

func (c *Capture) report(onError ErrorHandler, err error) {
	if onError == nil {
		slog.Warn("audio capture error", "error", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("audio error handler panic", "panic", r, "error", err)
		}
	}()
	onError(err)
}

// sleep waits for d or until stop is closed. It reports false on stop.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
