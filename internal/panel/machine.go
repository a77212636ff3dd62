package panel

import (
	"sync"
	"time"

	"github.com/sweeney/warning-panel/internal/gpio"
	"go.uber.org/zap"
)

// Machine is the state machine of one channel. It owns at most one blink
// goroutine, which only runs while the machine is Signaling.
type Machine struct {
	id     ChannelID
	pin    int
	out    gpio.Writer
	period time.Duration
	log    *zap.Logger
	obs    Observer

	mu      sync.Mutex // serializes transitions and Close
	state   State
	task    *blinkTask
	actions ActionCounts
	closed  bool
}

type blinkTask struct {
	stop chan struct{}
	done chan struct{}
}

// sleep waits for d or until the task is cancelled. It reports whether the
// task should keep running.
func (t *blinkTask) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (t *blinkTask) cancelled() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// newMachine configures the channel's pin as an output and forces it low.
func newMachine(id ChannelID, out gpio.Writer, period time.Duration, log *zap.Logger, obs Observer) (*Machine, error) {
	m := &Machine{
		id:     id,
		pin:    int(id),
		out:    out,
		period: period,
		log:    log.With(zap.Int("channel", int(id))),
		obs:    obs,
		state:  StateOff,
	}
	if err := out.Configure(m.pin); err != nil {
		return nil, err
	}
	if err := out.SetLow(m.pin); err != nil {
		// Nothing owns the pin yet, give it back
		if rerr := out.Release(m.pin); rerr != nil {
			m.log.Warn("release after failed setup", zap.Error(rerr))
		}
		return nil, err
	}
	m.log.Debug("state machine created")
	return m, nil
}

// ID returns the channel id.
func (m *Machine) ID() ChannelID {
	return m.id
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Actions returns how many times each on-enter action ran.
func (m *Machine) Actions() ActionCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actions
}

// Fire applies t. Triggers the current state does not accept are ignored and
// applied is false. When applied, the on-enter action has completed before
// Fire returns; a hardware fault from it is reported in tr.Err without
// undoing the state change.
func (m *Machine) Fire(t Trigger) (tr Transition, applied bool) {
	m.mu.Lock()
	tr, applied = m.fire(t)
	m.mu.Unlock()

	if applied {
		m.obs.Transitioned(tr)
	}
	return tr, applied
}

func (m *Machine) fire(t Trigger) (Transition, bool) {
	if m.closed {
		m.log.Info("ignoring trigger on destroyed machine", zap.Stringer("trigger", t))
		return Transition{}, false
	}

	to, ok := next(m.state, t)
	if !ok {
		m.log.Info("ignoring trigger", zap.Stringer("trigger", t), zap.Stringer("state", m.state))
		return Transition{}, false
	}

	tr := Transition{Channel: m.id, Trigger: t, From: m.state, To: to}
	m.state = to
	tr.Err = m.enter(to)
	tr.At = time.Now()
	return tr, true
}

func (m *Machine) enter(s State) error {
	if s == StateSignaling {
		m.startSignal()
		return nil
	}
	return m.stopSignal()
}

func (m *Machine) startSignal() {
	m.actions.Start++
	if m.task != nil {
		m.log.Info("already signaling")
		return
	}
	m.log.Info("start signaling")
	m.task = &blinkTask{stop: make(chan struct{}), done: make(chan struct{})}
	go m.blink(m.task)
}

func (m *Machine) stopSignal() error {
	m.actions.Stop++
	if m.joinBlink() {
		m.log.Info("stop signaling")
	} else {
		m.log.Info("not signaling")
	}
	return m.out.SetLow(m.pin)
}

// joinBlink cancels the blink goroutine and waits for it to exit.
func (m *Machine) joinBlink() bool {
	if m.task == nil {
		return false
	}
	close(m.task.stop)
	<-m.task.done
	m.task = nil
	return true
}

// blink toggles the pin until cancelled. A full cycle is exactly one period.
func (m *Machine) blink(t *blinkTask) {
	defer close(t.done)

	high, low := halfPeriods(m.period)
	for !t.cancelled() {
		if err := m.out.SetHigh(m.pin); err != nil {
			m.blinkFault(err)
			return
		}
		if !t.sleep(high) {
			return
		}
		if err := m.out.SetLow(m.pin); err != nil {
			m.blinkFault(err)
			return
		}
		if !t.sleep(low) {
			return
		}
	}
}

// halfPeriods splits period into the high and low phases of one cycle.
// The phases always sum to period.
func halfPeriods(period time.Duration) (high, low time.Duration) {
	high = period / 2
	return high, period - high
}

// blinkFault ends blinking but leaves the logical state Signaling until the
// next transition.
func (m *Machine) blinkFault(err error) {
	m.log.Error("blink stopped on hardware fault", zap.Error(err))
	m.obs.BlinkFaulted(m.id, err)
}

// Close stops any blink goroutine and forces the pin low, whatever the state.
// Later triggers are ignored.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.joinBlink()
	m.log.Debug("state machine destroyed")
	return m.out.SetLow(m.pin)
}
