package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweeney/warning-panel/internal/panel"
)

var ts = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func TestTopics(t *testing.T) {
	assert.Equal(t, "roadside/panel/commands", TopicCommands)
	assert.Equal(t, "roadside/panel/events", TopicEvents)
	assert.Equal(t, "roadside/panel/system", TopicSystem)
}

func TestFormatPayloadExactJSON(t *testing.T) {
	tr := panel.Transition{
		Channel: 5,
		Trigger: panel.TriggerStartSignal,
		From:    panel.StateOff,
		To:      panel.StateSignaling,
		At:      ts,
	}

	data, err := FormatPayload(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"panel":{"timestamp":"2026-02-10T14:30:00Z","channel":5,"event":"start_signal","from":"OFF","to":"SIGNALING"}}`, string(data))
}

func TestFormatPayloadWithError(t *testing.T) {
	tr := panel.Transition{
		Channel: 6,
		Trigger: panel.TriggerStopMachine,
		From:    panel.StateSignaling,
		To:      panel.StateStopped,
		At:      ts,
		Err:     errors.New("gpio: set low pin 6: device busy"),
	}

	data, err := FormatPayload(tr)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "stop_machine", p.Panel.Event)
	assert.Equal(t, "STOPPED", p.Panel.To)
	assert.Equal(t, "gpio: set low pin 6: device busy", p.Panel.Error)
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	data, err := FormatPayload(panel.Transition{Channel: 5, At: time.Date(2026, 2, 10, 16, 30, 0, 0, loc)})
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "2026-02-10T14:30:00Z", p.Panel.Timestamp)
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`, string(data))
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "RECONNECTED"})
	require.NoError(t, err)
	assert.Equal(t, `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`, string(data))
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	data, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestParseCommand(t *testing.T) {
	yes := true
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{"signal", `{"channels":[5,6],"event":"signal"}`, Command{Channels: []int{5, 6}, Event: CommandSignal}, false},
		{"end signal", `{"channels":[5],"event":"end-signal"}`, Command{Channels: []int{5}, Event: CommandEndSignal}, false},
		{"presence", `{"channels":[6],"present":true}`, Command{Channels: []int{6}, Present: &yes}, false},
		{"not json", `signal 5`, Command{}, true},
		{"no channels", `{"channels":[],"event":"signal"}`, Command{}, true},
		{"unknown event", `{"channels":[5],"event":"blink"}`, Command{}, true},
		{"nothing to do", `{"channels":[5]}`, Command{}, true},
		{"both", `{"channels":[5],"event":"signal","present":false}`, Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	tr := panel.Transition{Channel: 5, Trigger: panel.TriggerStartSignal, From: panel.StateOff, To: panel.StateSignaling, At: ts}

	require.NoError(t, f.PublishTransition(tr))
	require.NoError(t, f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}))

	require.Len(t, f.Transitions, 1)
	assert.Equal(t, tr, f.Transitions[0])
	require.Len(t, f.Payloads, 1)
	assert.Contains(t, string(f.Payloads[0]), `"to":"SIGNALING"`)
	require.Len(t, f.SystemEvents, 1)
	assert.True(t, f.SystemEvents[0].Retained)
	assert.Equal(t, f.Transitions, f.PublishedTransitions())
	assert.Equal(t, f.SystemEvents, f.PublishedSystemEvents())
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("publish failed")
	f.PublishSystemError = errors.New("system failed")

	assert.EqualError(t, f.PublishTransition(panel.Transition{}), "publish failed")
	assert.EqualError(t, f.PublishSystem(SystemEvent{}), "system failed")
	assert.Empty(t, f.Transitions)
	assert.Empty(t, f.SystemEvents)
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	require.NoError(t, f.PublishTransition(panel.Transition{Channel: 5}))
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
	assert.True(t, f.IsConnected())

	f.Reset()
	assert.False(t, f.Closed)
	assert.False(t, f.IsConnected())
	assert.Empty(t, f.Transitions)
	assert.Empty(t, f.Payloads)

	// Reusable after reset
	require.NoError(t, f.PublishTransition(panel.Transition{Channel: 6}))
	assert.Len(t, f.Transitions, 1)
}

var _ Publisher = (*FakePublisher)(nil)
var _ Publisher = (*RealClient)(nil)
var _ ConnectionStatus = (*RealClient)(nil)
