//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// CdevWriter drives pins through the Linux GPIO character device.
type CdevWriter struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewCdevWriter opens the named chip (e.g. "gpiochip0").
func NewCdevWriter(chipName string) (*CdevWriter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("warning-panel"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &CdevWriter{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Configure requests the line as an output, initially low.
// Configuring an already requested pin drives it low again.
func (w *CdevWriter) Configure(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if line, ok := w.lines[pin]; ok {
		return fault("configure", pin, line.SetValue(0))
	}
	line, err := w.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return fault("configure", pin, err)
	}
	w.lines[pin] = line
	return nil
}

// SetHigh drives the pin high.
func (w *CdevWriter) SetHigh(pin int) error {
	return w.set("set high", pin, 1)
}

// SetLow drives the pin low.
func (w *CdevWriter) SetLow(pin int) error {
	return w.set("set low", pin, 0)
}

func (w *CdevWriter) set(op string, pin, value int) error {
	w.mu.Lock()
	line, ok := w.lines[pin]
	w.mu.Unlock()
	if !ok {
		return fault(op, pin, fmt.Errorf("line not configured"))
	}
	return fault(op, pin, line.SetValue(value))
}

// Release drives the line low, returns it to input with pull-down and frees it.
func (w *CdevWriter) Release(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, ok := w.lines[pin]
	if !ok {
		return nil
	}
	delete(w.lines, pin)
	return fault("release", pin, releaseLine(line))
}

func releaseLine(line *gpiocdev.Line) error {
	var errs []error
	if err := line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("set low: %w", err))
	}
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure: %w", err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}

// Close drives every line low, then reconfigures it as an input with
// pull-down (the Pi boot default) before releasing it.
func (w *CdevWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for pin, line := range w.lines {
		if err := releaseLine(line); err != nil {
			errs = append(errs, fault("release", pin, err))
		}
	}
	w.lines = make(map[int]*gpiocdev.Line)
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
