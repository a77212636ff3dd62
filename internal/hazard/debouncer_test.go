package hazard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestInitialStateIsAbsent(t *testing.T) {
	d := NewDebouncer(250*time.Millisecond, t0)

	assert.False(t, d.Present(5))
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: false, Time: at(0)}))
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: false, Time: at(1000)}))
	assert.Empty(t, d.Counts())
}

func TestSignalAfterDebounce(t *testing.T) {
	d := NewDebouncer(250*time.Millisecond, t0)

	assert.Nil(t, d.Process(Presence{Channel: 5, Present: true, Time: at(0)}))
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: true, Time: at(200)}))

	e := d.Process(Presence{Channel: 5, Present: true, Time: at(250)})
	require.NotNil(t, e)
	assert.Equal(t, Edge{Channel: 5, Type: EdgeSignal, Time: at(250)}, *e)
	assert.True(t, d.Present(5))

	// Staying present emits nothing further
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: true, Time: at(600)}))
}

func TestGlitchIsSuppressed(t *testing.T) {
	d := NewDebouncer(250*time.Millisecond, t0)

	d.Process(Presence{Channel: 5, Present: true, Time: at(0)})
	d.Process(Presence{Channel: 5, Present: false, Time: at(100)})

	// Debounce restarts from the next change
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: true, Time: at(200)}))
	assert.Nil(t, d.Process(Presence{Channel: 5, Present: true, Time: at(400)}))
	e := d.Process(Presence{Channel: 5, Present: true, Time: at(450)})
	require.NotNil(t, e)
	assert.Equal(t, EdgeSignal, e.Type)
}

func TestEndSignal(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, t0)

	d.Process(Presence{Channel: 6, Present: true, Time: at(0)})
	require.NotNil(t, d.Process(Presence{Channel: 6, Present: true, Time: at(100)}))

	assert.Nil(t, d.Process(Presence{Channel: 6, Present: false, Time: at(500)}))
	e := d.Process(Presence{Channel: 6, Present: false, Time: at(600)})
	require.NotNil(t, e)
	assert.Equal(t, EdgeEndSignal, e.Type)
	assert.False(t, d.Present(6))
	assert.Equal(t, Counts{Signal: 1, EndSignal: 1}, d.Counts()[6])
}

func TestChannelsAreIndependent(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, t0)

	d.Process(Presence{Channel: 5, Present: true, Time: at(0)})
	d.Process(Presence{Channel: 6, Present: true, Time: at(50)})

	e := d.Process(Presence{Channel: 5, Present: true, Time: at(100)})
	require.NotNil(t, e)
	assert.Equal(t, 5, e.Channel)
	assert.Nil(t, d.Process(Presence{Channel: 6, Present: true, Time: at(100)}))

	e = d.Process(Presence{Channel: 6, Present: true, Time: at(150)})
	require.NotNil(t, e)
	assert.Equal(t, 6, e.Channel)
}

func TestZeroDebounce(t *testing.T) {
	d := NewDebouncer(0, t0)

	e := d.Process(Presence{Channel: 5, Present: true, Time: at(0)})
	require.NotNil(t, e)
	assert.Equal(t, EdgeSignal, e.Type)

	e = d.Process(Presence{Channel: 5, Present: false, Time: at(1)})
	require.NotNil(t, e)
	assert.Equal(t, EdgeEndSignal, e.Type)
}

func TestFlush(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, t0)

	d.Process(Presence{Channel: 6, Present: true, Time: at(0)})
	d.Process(Presence{Channel: 5, Present: true, Time: at(20)})
	d.Process(Presence{Channel: 7, Present: true, Time: at(90)})

	assert.Empty(t, d.Flush(at(50)))

	edges := d.Flush(at(120))
	require.Len(t, edges, 2)
	assert.Equal(t, 5, edges[0].Channel)
	assert.Equal(t, 6, edges[1].Channel)
	assert.Equal(t, at(120), edges[0].Time)

	// Already settled channels are not emitted again
	edges = d.Flush(at(200))
	require.Len(t, edges, 1)
	assert.Equal(t, 7, edges[0].Channel)
	assert.Empty(t, d.Flush(at(300)))
}

func TestCountsIsACopy(t *testing.T) {
	d := NewDebouncer(0, t0)
	d.Process(Presence{Channel: 5, Present: true, Time: at(0)})

	c := d.Counts()
	c[5] = Counts{Signal: 99}
	assert.Equal(t, 1, d.Counts()[5].Signal)
}

func TestCheckHeartbeat(t *testing.T) {
	d := NewDebouncer(0, t0)

	assert.Nil(t, d.CheckHeartbeat(at(1000), 0), "disabled interval")
	assert.Nil(t, d.CheckHeartbeat(at(1000), time.Minute))

	d.Process(Presence{Channel: 5, Present: true, Time: at(0)})
	hb := d.CheckHeartbeat(t0.Add(time.Minute), time.Minute)
	require.NotNil(t, hb)
	assert.Equal(t, time.Minute, hb.Uptime)
	assert.Equal(t, Counts{Signal: 1}, hb.Counts[5])

	// Interval restarts from the last heartbeat
	assert.Nil(t, d.CheckHeartbeat(t0.Add(90*time.Second), time.Minute))
	assert.NotNil(t, d.CheckHeartbeat(t0.Add(2*time.Minute), time.Minute))
}
