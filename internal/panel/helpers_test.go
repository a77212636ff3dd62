package panel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sweeney/warning-panel/internal/gpio"
	"go.uber.org/zap"
)

const (
	testPeriod = 20 * time.Millisecond
	waitFor    = 2 * time.Second
	tick       = time.Millisecond

	// barrier is a channel used only to prove earlier events were dispatched.
	barrier ChannelID = 999
)

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
	faults      []error
}

func (r *recorder) Transitioned(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *recorder) BlinkFaulted(ch ChannelID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, err)
}

func (r *recorder) For(ch ChannelID) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transition
	for _, tr := range r.transitions {
		if tr.Channel == ch {
			out = append(out, tr)
		}
	}
	return out
}

func (r *recorder) Faults() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.faults)
}

// newTestPanel creates and starts a panel over a fake writer with the given
// channels plus the barrier channel. Stop and DestroyAll run on cleanup.
func newTestPanel(t *testing.T, ids ...ChannelID) (*Panel, *gpio.FakeWriter, *recorder) {
	t.Helper()
	out := gpio.NewFakeWriter()
	rec := &recorder{}
	p := New(out, Config{Period: testPeriod}, zap.NewNop(), rec)
	require.NoError(t, p.Create(append(ids, barrier)...))
	require.NoError(t, p.Start())
	t.Cleanup(func() {
		p.Stop()
		p.DestroyAll()
	})
	return p, out, rec
}

func actionsOf(t *testing.T, p *Panel, id ChannelID) ActionCounts {
	t.Helper()
	m, ok := p.registry.Get(id)
	require.True(t, ok, "channel %d not registered", id)
	return m.Actions()
}

// flush toggles the barrier channel and waits for it, so every event queued
// before the call has been applied.
func flush(t *testing.T, p *Panel) {
	t.Helper()
	m, ok := p.registry.Get(barrier)
	require.True(t, ok)
	before := m.Actions()
	if m.State() == StateSignaling {
		p.EndSignal(barrier)
	} else {
		p.Signal(barrier)
	}
	require.Eventually(t, func() bool {
		a := m.Actions()
		return a.Start+a.Stop == before.Start+before.Stop+1
	}, waitFor, tick)
}
