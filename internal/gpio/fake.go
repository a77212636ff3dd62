package gpio

import (
	"sync"
	"time"
)

// Op names a recorded pin operation.
type Op string

const (
	OpConfigure Op = "configure"
	OpHigh      Op = "high"
	OpLow       Op = "low"
	OpRelease   Op = "release"
)

// Call is a single recorded pin operation.
type Call struct {
	Seq  int
	Op   Op
	Pin  int
	Time time.Time
}

// FakeWriter is a test double that records pin operations.
// Unlike the hardware writers it keeps a history, so tests can reason about
// ordering across concurrently blinking channels. Safe for concurrent use.
type FakeWriter struct {
	mu       sync.Mutex
	calls    []Call
	levels   map[int]bool
	failures map[failKey]error
	closed   bool
}

type failKey struct {
	op  Op
	pin int
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{
		levels:   make(map[int]bool),
		failures: make(map[failKey]error),
	}
}

// FailOn makes every later op on pin fail with err. A nil err clears it.
func (f *FakeWriter) FailOn(op Op, pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, failKey{op, pin})
		return
	}
	f.failures[failKey{op, pin}] = err
}

func (f *FakeWriter) record(op Op, pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failures[failKey{op, pin}]; ok {
		return fault(string(op), pin, err)
	}
	f.calls = append(f.calls, Call{Seq: len(f.calls) + 1, Op: op, Pin: pin, Time: time.Now()})
	switch op {
	case OpHigh:
		f.levels[pin] = true
	case OpLow, OpConfigure, OpRelease:
		f.levels[pin] = false
	}
	return nil
}

// Configure records a configure call.
func (f *FakeWriter) Configure(pin int) error { return f.record(OpConfigure, pin) }

// SetHigh records a high call.
func (f *FakeWriter) SetHigh(pin int) error { return f.record(OpHigh, pin) }

// SetLow records a low call.
func (f *FakeWriter) SetLow(pin int) error { return f.record(OpLow, pin) }

// Release records a release call.
func (f *FakeWriter) Release(pin int) error { return f.record(OpRelease, pin) }

// Close marks the writer as closed and drives every pin low.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.levels {
		f.levels[pin] = false
	}
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Calls returns a copy of every recorded call in order.
func (f *FakeWriter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the recorded calls for one pin.
func (f *FakeWriter) CallsFor(pin int) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Pin == pin {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of recorded calls of op on pin.
func (f *FakeWriter) Count(op Op, pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op && c.Pin == pin {
			n++
		}
	}
	return n
}

// LastSeq returns the sequence number of the last op on pin, or 0.
func (f *FakeWriter) LastSeq(op Op, pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Op == op && f.calls[i].Pin == pin {
			return f.calls[i].Seq
		}
	}
	return 0
}

// High reports the current level of pin.
func (f *FakeWriter) High(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Reset clears recorded calls and injected failures.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.levels = make(map[int]bool)
	f.failures = make(map[failKey]error)
	f.closed = false
}
