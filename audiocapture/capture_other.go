//go:build !windows

package audiocapture

// newEndpoint returns ErrUnsupported on platforms without WASAPI loopback.
func newEndpoint(Config) (endpoint, error) {
	return nil, ErrUnsupported
}

func listDevices() ([]Device, error) {
	return nil, ErrUnsupported
}
