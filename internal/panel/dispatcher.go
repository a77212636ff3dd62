package panel

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher applies queued events to machines one at a time, in queue order.
type Dispatcher struct {
	queue    *Queue
	registry *Registry
	log      *zap.Logger

	mu       sync.Mutex
	stopErrs []error

	done chan struct{}
}

func newDispatcher(q *Queue, r *Registry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		registry: r,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Run consumes events until a shutdown event is dequeued.
func (d *Dispatcher) Run() {
	defer close(d.done)
	d.log.Info("dispatcher started")
	for {
		ev := d.queue.Pop()
		if ev.Kind == EventShutdown {
			d.log.Info("dispatcher stopped")
			return
		}
		d.apply(ev)
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) apply(ev Event) {
	log := d.log.With(zap.Int("channel", int(ev.Channel)), zap.Stringer("event", ev.Kind))

	t, ok := ev.Kind.trigger()
	if !ok {
		log.Warn("dropping unsupported event")
		return
	}
	m, ok := d.registry.Get(ev.Channel)
	if !ok {
		log.Warn("dropping event for unknown channel")
		return
	}

	log.Debug("applying event")
	tr, applied := m.Fire(t)
	if !applied || tr.Err == nil {
		return
	}
	log.Error("hardware fault during transition", zap.Stringer("to", tr.To), zap.Error(tr.Err))
	if ev.Kind == EventStop {
		d.mu.Lock()
		d.stopErrs = append(d.stopErrs, tr.Err)
		d.mu.Unlock()
	}
}

// stopErrors returns and clears the faults raised by stop events.
func (d *Dispatcher) stopErrors() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := errors.Join(d.stopErrs...)
	d.stopErrs = nil
	return err
}
