//go:build !windows

package platform

// New returns the native driver for this platform. Only Windows has a
// native adapter today; the macOS Quartz path needs cgo and lives behind
// the same Driver interface when it lands.
func New() (Driver, error) {
	return nil, ErrUnsupported
}
