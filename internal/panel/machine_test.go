package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/warning-panel/internal/gpio"
	"go.uber.org/zap"
)

func newTestMachine(t *testing.T, id ChannelID, period time.Duration) (*Machine, *gpio.FakeWriter, *recorder) {
	t.Helper()
	out := gpio.NewFakeWriter()
	rec := &recorder{}
	m, err := newMachine(id, out, period, zap.NewNop(), rec)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, out, rec
}

func TestNewMachineConfiguresPinLow(t *testing.T) {
	m, out, _ := newTestMachine(t, 5, testPeriod)

	assert.Equal(t, StateOff, m.State())
	assert.Equal(t, ActionCounts{}, m.Actions())
	calls := out.CallsFor(5)
	require.Len(t, calls, 2)
	assert.Equal(t, gpio.OpConfigure, calls[0].Op)
	assert.Equal(t, gpio.OpLow, calls[1].Op)
}

func TestNewMachineConfigureFault(t *testing.T) {
	out := gpio.NewFakeWriter()
	out.FailOn(gpio.OpConfigure, 5, errors.New("busy"))

	_, err := newMachine(5, out, testPeriod, zap.NewNop(), nopObserver{})
	assert.ErrorIs(t, err, gpio.ErrHardwareFault)
}

func TestNewMachineSetLowFaultReleasesPin(t *testing.T) {
	out := gpio.NewFakeWriter()
	out.FailOn(gpio.OpLow, 5, errors.New("busy"))

	_, err := newMachine(5, out, testPeriod, zap.NewNop(), nopObserver{})
	assert.ErrorIs(t, err, gpio.ErrHardwareFault)

	calls := out.CallsFor(5)
	require.Len(t, calls, 2)
	assert.Equal(t, gpio.OpConfigure, calls[0].Op)
	assert.Equal(t, gpio.OpRelease, calls[1].Op)
}

func TestMachineBlinks(t *testing.T) {
	m, out, rec := newTestMachine(t, 5, testPeriod)

	tr, applied := m.Fire(TriggerStartSignal)
	require.True(t, applied)
	assert.Equal(t, StateOff, tr.From)
	assert.Equal(t, StateSignaling, tr.To)
	assert.NoError(t, tr.Err)

	require.Eventually(t, func() bool { return out.Count(gpio.OpHigh, 5) >= 3 }, waitFor, tick)

	tr, applied = m.Fire(TriggerStopSignal)
	require.True(t, applied)
	assert.Equal(t, StateOff, m.State())
	assert.False(t, out.High(5))
	assert.Greater(t, out.LastSeq(gpio.OpLow, 5), out.LastSeq(gpio.OpHigh, 5))
	assert.Len(t, rec.For(5), 2)

	// The blink goroutine is gone: nothing toggles any more
	highs := out.Count(gpio.OpHigh, 5)
	time.Sleep(3 * testPeriod)
	assert.Equal(t, highs, out.Count(gpio.OpHigh, 5))
}

func TestMachineIgnoresUnsupportedTriggers(t *testing.T) {
	m, _, rec := newTestMachine(t, 5, testPeriod)

	_, applied := m.Fire(TriggerStopSignal)
	assert.False(t, applied)
	assert.Equal(t, ActionCounts{}, m.Actions())

	m.Fire(TriggerStartSignal)
	_, applied = m.Fire(TriggerStartSignal)
	assert.False(t, applied)
	assert.Equal(t, ActionCounts{Start: 1}, m.Actions())
	assert.Len(t, rec.For(5), 1)
}

func TestMachineStoppedIsTerminal(t *testing.T) {
	m, out, _ := newTestMachine(t, 5, testPeriod)

	m.Fire(TriggerStartSignal)
	tr, applied := m.Fire(TriggerStopMachine)
	require.True(t, applied)
	assert.Equal(t, StateStopped, tr.To)
	assert.Equal(t, ActionCounts{Start: 1, Stop: 1}, m.Actions())
	assert.False(t, out.High(5))

	for _, trig := range []Trigger{TriggerStartSignal, TriggerStopSignal, TriggerStopMachine} {
		_, applied := m.Fire(trig)
		assert.False(t, applied, trig.String())
	}
	assert.Equal(t, ActionCounts{Start: 1, Stop: 1}, m.Actions())
	assert.Equal(t, StateStopped, m.State())
}

func TestMachineStopFromOff(t *testing.T) {
	m, out, _ := newTestMachine(t, 5, testPeriod)
	lows := out.Count(gpio.OpLow, 5)

	tr, applied := m.Fire(TriggerStopMachine)
	require.True(t, applied)
	assert.Equal(t, StateOff, tr.From)
	assert.Equal(t, StateStopped, tr.To)
	assert.Equal(t, ActionCounts{Stop: 1}, m.Actions())
	assert.Equal(t, lows+1, out.Count(gpio.OpLow, 5))
}

func TestMachineCloseForcesLow(t *testing.T) {
	m, out, _ := newTestMachine(t, 5, time.Hour)

	m.Fire(TriggerStartSignal)
	require.Eventually(t, func() bool { return out.High(5) }, waitFor, tick)

	require.NoError(t, m.Close())
	assert.False(t, out.High(5))
	// Close does not count as a state-entry action
	assert.Equal(t, ActionCounts{Start: 1}, m.Actions())

	_, applied := m.Fire(TriggerStopSignal)
	assert.False(t, applied)
	assert.NoError(t, m.Close())
}

func TestMachineStopIsPrompt(t *testing.T) {
	// With a one hour period the blink goroutine sits in its first sleep;
	// cancellation must not wait for it.
	m, out, _ := newTestMachine(t, 5, time.Hour)
	m.Fire(TriggerStartSignal)
	require.Eventually(t, func() bool { return out.High(5) }, waitFor, tick)

	start := time.Now()
	m.Fire(TriggerStopSignal)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, out.High(5))
}

func TestMachineBlinkFaultKeepsState(t *testing.T) {
	m, out, rec := newTestMachine(t, 5, testPeriod)
	out.FailOn(gpio.OpHigh, 5, errors.New("permission denied"))

	tr, applied := m.Fire(TriggerStartSignal)
	require.True(t, applied)
	assert.NoError(t, tr.Err)

	require.Eventually(t, func() bool { return rec.Faults() == 1 }, waitFor, tick)
	assert.Equal(t, StateSignaling, m.State())

	// A later transition still completes and restarts cleanly
	out.FailOn(gpio.OpHigh, 5, nil)
	_, applied = m.Fire(TriggerStopSignal)
	require.True(t, applied)
	_, applied = m.Fire(TriggerStartSignal)
	require.True(t, applied)
	require.Eventually(t, func() bool { return out.Count(gpio.OpHigh, 5) >= 1 }, waitFor, tick)
}

func TestMachineStopFaultDoesNotRollBack(t *testing.T) {
	m, out, _ := newTestMachine(t, 5, testPeriod)
	m.Fire(TriggerStartSignal)
	out.FailOn(gpio.OpLow, 5, errors.New("io error"))

	tr, applied := m.Fire(TriggerStopSignal)
	require.True(t, applied)
	assert.ErrorIs(t, tr.Err, gpio.ErrHardwareFault)
	assert.Equal(t, StateOff, m.State())
	out.FailOn(gpio.OpLow, 5, nil)
}

func TestHalfPeriodsSumToPeriod(t *testing.T) {
	for _, period := range []time.Duration{2 * time.Second, 3 * time.Nanosecond, 101 * time.Millisecond, 0} {
		high, low := halfPeriods(period)
		assert.Equal(t, period, high+low)
		assert.LessOrEqual(t, low-high, time.Duration(1))
	}
}

func TestBlinkDutyTiming(t *testing.T) {
	const period = 100 * time.Millisecond
	m, out, _ := newTestMachine(t, 5, period)

	m.Fire(TriggerStartSignal)
	require.Eventually(t, func() bool { return out.Count(gpio.OpHigh, 5) >= 3 }, waitFor, tick)
	m.Fire(TriggerStopSignal)

	var highs []time.Time
	for _, c := range out.CallsFor(5) {
		if c.Op == gpio.OpHigh {
			highs = append(highs, c.Time)
		}
	}
	require.GreaterOrEqual(t, len(highs), 3)
	for i := 1; i < len(highs); i++ {
		cycle := highs[i].Sub(highs[i-1])
		assert.GreaterOrEqual(t, cycle, period)
		assert.Less(t, cycle, period+60*time.Millisecond, "cycle %d took %v", i, cycle)
	}
}
