//go:build windows

package audiocapture

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"

	"go.aimuz.me/huddle/pcm"
)

const (
	shareModeShared          = 0
	streamFlagsLoopback      = 0x00020000
	streamFlagsEventCallback = 0x00040000
	bufferFlagsSilent        = 0x2

	waveFormatIEEEFloat  = 0x0003
	waveFormatExtensible = 0xFFFE

	// Offset of SubFormat inside WAVEFORMATEXTENSIBLE.
	subFormatOffset = 24

	sFalse          = 0x1
	rpcEChangedMode = 0x80010106
)

// KSDATAFORMAT_SUBTYPE_IEEE_FLOAT in its in-memory layout.
var subtypeIEEEFloat = []byte{
	0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71,
}

// wasapiEndpoint is a shared-mode WASAPI loopback session on a render device.
type wasapiEndpoint struct {
	enumerator *wca.IMMDeviceEnumerator
	device     *wca.IMMDevice
	client     *wca.IAudioClient
	capture    *wca.IAudioCaptureClient
	event      windows.Handle
	fmt        pcm.Format
}

func newEndpoint(cfg Config) (endpoint, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// The multithreaded apartment must outlive this call: the capture
	// goroutine uses these interfaces from another OS thread.
	if _, err := comInit(); err != nil {
		return nil, err
	}

	ep := &wasapiEndpoint{}
	if err := ep.open(cfg); err != nil {
		ep.close()
		return nil, err
	}
	return ep, nil
}

func (ep *wasapiEndpoint) open(cfg Config) error {
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &ep.enumerator); err != nil {
		return fmt.Errorf("create device enumerator: %w", err)
	}

	var err error
	if cfg.DeviceID == "" {
		err = ep.enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &ep.device)
	} else {
		ep.device, err = findRenderDevice(ep.enumerator, cfg.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("get render endpoint: %w", err)
	}

	if err := ep.device.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ep.client); err != nil {
		return fmt.Errorf("activate audio client: %w", err)
	}

	var wfx *wca.WAVEFORMATEX
	if err := ep.client.GetMixFormat(&wfx); err != nil {
		return fmt.Errorf("get mix format: %w", err)
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))

	ep.fmt = pcm.Format{
		SampleRate:     wfx.NSamplesPerSec,
		BitsPerSample:  wfx.WBitsPerSample,
		Channels:       wfx.NChannels,
		BlockAlign:     uint32(wfx.NBlockAlign),
		AvgBytesPerSec: wfx.NAvgBytesPerSec,
		IsFloat:        isFloat(wfx),
	}
	if err := ep.fmt.Validate(); err != nil {
		return err
	}

	flags := uint32(streamFlagsLoopback)
	if !cfg.Polling {
		flags |= streamFlagsEventCallback
	}
	// REFERENCE_TIME is in 100ns units.
	duration := wca.REFERENCE_TIME(cfg.BufferDuration / 100)
	if err := ep.client.Initialize(shareModeShared, flags, duration, 0, wfx, nil); err != nil {
		return fmt.Errorf("initialize audio client: %w", err)
	}

	if !cfg.Polling {
		ev, err := windows.CreateEvent(nil, 0, 0, nil)
		if err != nil {
			return fmt.Errorf("create buffer event: %w", err)
		}
		ep.event = ev
		if err := ep.client.SetEventHandle(uintptr(ev)); err != nil {
			return fmt.Errorf("set event handle: %w", err)
		}
	}

	if err := ep.client.GetService(wca.IID_IAudioCaptureClient, &ep.capture); err != nil {
		return fmt.Errorf("get capture client: %w", err)
	}
	return nil
}

// isFloat reports whether the mix format carries IEEE float samples, either
// directly or through the extensible SubFormat GUID.
func isFloat(wfx *wca.WAVEFORMATEX) bool {
	switch wfx.WFormatTag {
	case waveFormatIEEEFloat:
		return true
	case waveFormatExtensible:
		if wfx.CbSize < 22 {
			return false
		}
		sub := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(wfx), subFormatOffset)), len(subtypeIEEEFloat))
		return bytes.Equal(sub, subtypeIEEEFloat)
	}
	return false
}

func (ep *wasapiEndpoint) format() pcm.Format { return ep.fmt }

func (ep *wasapiEndpoint) attach() (func(), error) {
	runtime.LockOSThread()
	initialized, err := comInit()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		if initialized {
			ole.CoUninitialize()
		}
		runtime.UnlockOSThread()
	}, nil
}

func (ep *wasapiEndpoint) start() error { return ep.client.Start() }
func (ep *wasapiEndpoint) stop() error  { return ep.client.Stop() }

func (ep *wasapiEndpoint) wait(timeout time.Duration) (bool, error) {
	ev, err := windows.WaitForSingleObject(ep.event, uint32(timeout/time.Millisecond))
	if err != nil {
		return false, err
	}
	return ev == windows.WAIT_OBJECT_0, nil
}

func (ep *wasapiEndpoint) wake() {
	if ep.event != 0 {
		windows.SetEvent(ep.event)
	}
}

func (ep *wasapiEndpoint) read() (packet, bool, error) {
	var next uint32
	if err := ep.capture.GetNextPacketSize(&next); err != nil {
		return packet{}, false, err
	}
	if next == 0 {
		return packet{}, false, nil
	}

	var (
		data      *byte
		frames    uint32
		flags     uint32
		devicePos uint64
		qpcPos    uint64
	)
	if err := ep.capture.GetBuffer(&data, &frames, &flags, &devicePos, &qpcPos); err != nil {
		return packet{}, false, err
	}

	p := packet{
		frames:    frames,
		timestamp: qpcPos,
		silent:    flags&bufferFlagsSilent != 0,
	}
	if frames > 0 && data != nil && !p.silent {
		p.data = unsafe.Slice(data, int(frames)*int(ep.fmt.BlockAlign))
	}
	return p, true, nil
}

func (ep *wasapiEndpoint) release(frames uint32) error {
	return ep.capture.ReleaseBuffer(frames)
}

func (ep *wasapiEndpoint) close() error {
	if ep.capture != nil {
		ep.capture.Release()
		ep.capture = nil
	}
	if ep.client != nil {
		ep.client.Release()
		ep.client = nil
	}
	if ep.device != nil {
		ep.device.Release()
		ep.device = nil
	}
	if ep.enumerator != nil {
		ep.enumerator.Release()
		ep.enumerator = nil
	}
	if ep.event != 0 {
		err := windows.CloseHandle(ep.event)
		ep.event = 0
		return err
	}
	return nil
}

func listDevices() ([]Device, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	initialized, err := comInit()
	if err != nil {
		return nil, err
	}
	if initialized {
		defer ole.CoUninitialize()
	}

	var mmde *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &mmde); err != nil {
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}
	defer mmde.Release()

	var dc *wca.IMMDeviceCollection
	if err := mmde.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &dc); err != nil {
		return nil, fmt.Errorf("enumerate render endpoints: %w", err)
	}
	defer dc.Release()

	var count uint32
	if err := dc.GetCount(&count); err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}

	devices := make([]Device, 0, count)
	for i := uint32(0); i < count; i++ {
		var d *wca.IMMDevice
		if err := dc.Item(i, &d); err != nil {
			continue
		}
		var id string
		if err := d.GetId(&id); err == nil {
			devices = append(devices, Device{ID: id, Name: friendlyName(d)})
		}
		d.Release()
	}
	return devices, nil
}

// findRenderDevice returns the active render endpoint with the given id.
// IMMDeviceEnumerator.GetDevice is not implemented by the bindings, so the
// active endpoints are walked instead.
func findRenderDevice(mmde *wca.IMMDeviceEnumerator, id string) (*wca.IMMDevice, error) {
	var dc *wca.IMMDeviceCollection
	if err := mmde.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &dc); err != nil {
		return nil, fmt.Errorf("enumerate render endpoints: %w", err)
	}
	defer dc.Release()

	var count uint32
	if err := dc.GetCount(&count); err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var d *wca.IMMDevice
		if err := dc.Item(i, &d); err != nil {
			continue
		}
		var got string
		if err := d.GetId(&got); err == nil && sameDeviceID(got, id) {
			return d, nil
		}
		d.Release()
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

func friendlyName(d *wca.IMMDevice) string {
	var ps *wca.IPropertyStore
	if err := d.OpenPropertyStore(wca.STGM_READ, &ps); err != nil {
		return ""
	}
	defer ps.Release()

	var pv wca.PROPVARIANT
	if err := ps.GetValue(&wca.PKEY_Device_FriendlyName, &pv); err != nil {
		return ""
	}
	return pv.String()
}

// comInit joins the multithreaded apartment. It reports whether the caller
// owes a CoUninitialize.
func comInit() (bool, error) {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return true, nil
	}
	var oe *ole.OleError
	if errors.As(err, &oe) {
		switch oe.Code() {
		case sFalse:
			return true, nil
		case rpcEChangedMode:
			return false, nil
		}
	}
	return false, fmt.Errorf("initialize COM: %w", err)
}
