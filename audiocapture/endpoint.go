package audiocapture

import (
	"errors"
	"strings"
	"time"

	"go.aimuz.me/huddle/pcm"
)

// endpoint is the platform audio session drained by the capture loop.
// All methods except format, wake and close are called from the capture
// goroutine only.
type endpoint interface {
	format() pcm.Format

	// attach prepares the calling goroutine for platform calls (OS thread
	// pinning, COM apartment) and returns the matching teardown.
	attach() (detach func(), err error)

	start() error
	stop() error

	// wait blocks until the engine signals buffered audio, wake is called or
	// timeout elapses. It reports whether the buffer-ready signal fired.
	wait(timeout time.Duration) (bool, error)

	// wake unblocks a pending or the next wait.
	wake()

	// read returns the next queued packet; ok is false once the engine queue
	// is empty. Packet data is valid until release.
	read() (p packet, ok bool, err error)
	release(frames uint32) error

	close() error
}

type packet struct {
	data      []byte
	frames    uint32
	timestamp uint64
	silent    bool
}

// ErrDeviceNotFound is returned by New when Config.DeviceID names no active
// render endpoint.
var ErrDeviceNotFound = errors.New("audiocapture: render device not found")

// sameDeviceID compares endpoint ids the way the platform does: GUID parts
// are case-insensitive and pasted ids often carry surrounding spaces.
func sameDeviceID(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

// Device identifies an active audio output endpoint.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Devices lists the active render endpoints that can be captured in
// loopback mode. It is intended for diagnostics and device selection.
func Devices() ([]Device, error) {
	devices, err := listDevices()
	if err != nil {
		return nil, &DeviceError{Op: "enumerate devices", Err: err}
	}
	return devices, nil
}
