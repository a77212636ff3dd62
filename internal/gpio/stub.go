//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevWriter is not available on non-Linux platforms.
type CdevWriter struct{}

// NewCdevWriter returns an error on non-Linux platforms.
func NewCdevWriter(chipName string) (*CdevWriter, error) {
	return nil, errUnsupported
}

func (w *CdevWriter) Configure(pin int) error { return fault("configure", pin, errUnsupported) }
func (w *CdevWriter) SetHigh(pin int) error { return fault("set high", pin, errUnsupported) }
func (w *CdevWriter) SetLow(pin int) error { return fault("set low", pin, errUnsupported) }
func (w *CdevWriter) Release(pin int) error { return nil }
func (w *CdevWriter) Close() error { return nil }

// RpioWriter is not available on non-Linux platforms.
type RpioWriter struct{}

// NewRpioWriter returns an error on non-Linux platforms.
func NewRpioWriter() (*RpioWriter, error) {
	return nil, errUnsupported
}

func (w *RpioWriter) Configure(pin int) error { return fault("configure", pin, errUnsupported) }
func (w *RpioWriter) SetHigh(pin int) error { return fault("set high", pin, errUnsupported) }
func (w *RpioWriter) SetLow(pin int) error { return fault("set low", pin, errUnsupported) }
func (w *RpioWriter) Release(pin int) error { return nil }
func (w *RpioWriter) Close() error { return nil }
