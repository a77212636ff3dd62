// Package gpio drives panel output lines with hardware abstraction.
// The cdev implementation uses the Linux GPIO character device, the rpio
// implementation maps the BCM2835 registers, and the disabled implementation
// only logs. The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Writer drives GPIO output pins.
type Writer interface {
	// Configure claims the pin as an output. The pin starts low.
	Configure(pin int) error

	// SetHigh drives the pin high.
	SetHigh(pin int) error

	// SetLow drives the pin low. Calling it on a low pin is not an error.
	SetLow(pin int) error

	// Release drives the pin low and gives it back, so a later Configure
	// claims it afresh. Releasing an unconfigured pin is a no-op.
	Release(pin int) error

	// Close drives every configured pin low and releases GPIO resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverCdev     = "cdev"
	DriverRpio     = "rpio"
	DriverDisabled = "disabled"
)

// DefaultChip is the character device used by the cdev driver.
const DefaultChip = "gpiochip0"

// ErrHardwareFault matches every error returned by a Writer for a failed pin operation.
var ErrHardwareFault = errors.New("gpio: hardware fault")

// HardwareFault describes a failed pin operation.
type HardwareFault struct {
	Op  string
	Pin int
	Err error
}

func (f *HardwareFault) Error() string {
	return fmt.Sprintf("gpio: %s pin %d: %v", f.Op, f.Pin, f.Err)
}

func (f *HardwareFault) Unwrap() error {
	return f.Err
}

// Is reports whether target is ErrHardwareFault.
func (f *HardwareFault) Is(target error) bool {
	return target == ErrHardwareFault
}

func fault(op string, pin int, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareFault{Op: op, Pin: pin, Err: err}
}

// Options selects and configures a Writer.
type Options struct {
	// Enabled drives real pins. When false the disabled writer is used
	// regardless of Driver.
	Enabled bool
	Driver  string
	Chip    string
}

// Open returns the Writer selected by opts.
func Open(opts Options, log *zap.Logger) (Writer, error) {
	if !opts.Enabled {
		return NewDisabledWriter(log), nil
	}
	switch strings.ToLower(opts.Driver) {
	case "", DriverCdev:
		chip := opts.Chip
		if chip == "" {
			chip = DefaultChip
		}
		w, err := NewCdevWriter(chip)
		if err != nil {
			return nil, err
		}
		return w, nil
	case DriverRpio:
		w, err := NewRpioWriter()
		if err != nil {
			return nil, err
		}
		return w, nil
	case DriverDisabled:
		return NewDisabledWriter(log), nil
	default:
		return nil, fmt.Errorf("gpio: unknown driver %q", opts.Driver)
	}
}
