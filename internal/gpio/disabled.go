package gpio

import "go.uber.org/zap"

// DisabledWriter is used when GPIO output is turned off. Every call succeeds
// and is only logged.
type DisabledWriter struct {
	log *zap.Logger
}

// NewDisabledWriter creates a DisabledWriter. A nil logger discards output.
func NewDisabledWriter(log *zap.Logger) *DisabledWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &DisabledWriter{log: log.Named("gpio")}
}

func (w *DisabledWriter) Configure(pin int) error {
	w.log.Debug("configure output (disabled)", zap.Int("pin", pin))
	return nil
}

func (w *DisabledWriter) SetHigh(pin int) error {
	w.log.Debug("turn high (disabled)", zap.Int("pin", pin))
	return nil
}

func (w *DisabledWriter) SetLow(pin int) error {
	w.log.Debug("turn low (disabled)", zap.Int("pin", pin))
	return nil
}

func (w *DisabledWriter) Release(pin int) error {
	w.log.Debug("release (disabled)", zap.Int("pin", pin))
	return nil
}

func (w *DisabledWriter) Close() error {
	return nil
}
