//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioWriter drives pins through memory-mapped BCM2835 registers.
// Pin numbers use BCM numbering.
type RpioWriter struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRpioWriter maps /dev/gpiomem.
func NewRpioWriter() (*RpioWriter, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RpioWriter{pins: make(map[int]rpio.Pin)}, nil
}

// Configure sets the pin mode to output and drives it low.
func (w *RpioWriter) Configure(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	w.pins[pin] = p
	return nil
}

// SetHigh drives the pin high.
func (w *RpioWriter) SetHigh(pin int) error {
	p, err := w.lookup("set high", pin)
	if err != nil {
		return err
	}
	p.High()
	return nil
}

// SetLow drives the pin low.
func (w *RpioWriter) SetLow(pin int) error {
	p, err := w.lookup("set low", pin)
	if err != nil {
		return err
	}
	p.Low()
	return nil
}

// Release drives the pin low and returns it to input mode with pull-down.
func (w *RpioWriter) Release(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pins[pin]
	if !ok {
		return nil
	}
	p.Low()
	p.Input()
	p.PullDown()
	delete(w.pins, pin)
	return nil
}

func (w *RpioWriter) lookup(op string, pin int) (rpio.Pin, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pins[pin]
	if !ok {
		return 0, fault(op, pin, fmt.Errorf("pin not configured"))
	}
	return p, nil
}

// Close drives every pin low, returns it to input mode and unmaps the registers.
func (w *RpioWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.pins {
		p.Low()
		p.Input()
		p.PullDown()
	}
	w.pins = make(map[int]rpio.Pin)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}
