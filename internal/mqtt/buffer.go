package mqtt

import "github.com/gammazero/deque"

// bufferedMsg is a channel transition or system event, already serialized,
// waiting for the broker to come back.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m bufferedMsg) isTransition() bool { return m.topic == TopicEvents }

// outbox holds panel publishes while the broker is unreachable so they can be
// replayed in order on reconnect. It is bounded: when full, the oldest channel
// transition is evicted first, and system events (STARTUP, SHUTDOWN) only go
// once no transitions are left to drop. Not safe for concurrent use;
// RealClient guards it with its mutex.
type outbox struct {
	msgs     deque.Deque[bufferedMsg]
	capacity int
	dropped  int // evictions since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{capacity: capacity}
}

// push queues msg, evicting to stay within capacity. It reports true only for
// the first eviction since the last drain, so callers log once per outage.
func (o *outbox) push(msg bufferedMsg) (firstDrop bool) {
	if o.msgs.Len() == o.capacity {
		victim := o.msgs.Index(bufferedMsg.isTransition)
		if victim < 0 {
			victim = 0
		}
		o.msgs.Remove(victim)
		o.dropped++
		firstDrop = o.dropped == 1
	}
	o.msgs.PushBack(msg)
	return firstDrop
}

// drain empties the outbox, oldest first, and reports how many messages were
// evicted since the previous drain.
func (o *outbox) drain() (msgs []bufferedMsg, dropped int) {
	if o.msgs.Len() == 0 {
		return nil, 0
	}
	msgs = make([]bufferedMsg, 0, o.msgs.Len())
	for o.msgs.Len() > 0 {
		msgs = append(msgs, o.msgs.PopFront())
	}
	dropped, o.dropped = o.dropped, 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return o.msgs.Len()
}
