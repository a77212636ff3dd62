package panel

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/warning-panel/internal/gpio"
	"go.uber.org/zap"
)

// DefaultPeriod is one full blink cycle: high for half, low for half.
const DefaultPeriod = 2 * time.Second

// Config configures a Panel.
type Config struct {
	// Period is the full blink cycle. Zero means DefaultPeriod.
	Period time.Duration
}

// ChannelInfo is a point-in-time view of one channel.
type ChannelInfo struct {
	ID      ChannelID
	State   State
	Actions ActionCounts
}

// Panel is the public face of the scheduler: a registry of channel machines,
// the event queue and the dispatcher consuming it.
type Panel struct {
	log        *zap.Logger
	queue      *Queue
	registry   *Registry
	dispatcher *Dispatcher

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a Panel driving out. A nil obs is allowed.
func New(out gpio.Writer, cfg Config, log *zap.Logger, obs Observer) *Panel {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	period := cfg.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	log = log.Named("panel")

	factory := func(id ChannelID) (*Machine, error) {
		return newMachine(id, out, period, log, obs)
	}
	q := NewQueue()
	r := newRegistry(factory, log)
	return &Panel{
		log:        log,
		queue:      q,
		registry:   r,
		dispatcher: newDispatcher(q, r, log.Named("dispatch")),
	}
}

// Create registers channels. Each new channel's pin is configured as an
// output and forced low. Ids already registered keep their state.
func (p *Panel) Create(ids ...ChannelID) error {
	return p.registry.Create(ids...)
}

// Start launches the dispatcher. It may only be called once.
func (p *Panel) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	go p.dispatcher.Run()
	return nil
}

// Signal asks each channel to start blinking. Events are queued in the order
// given; unknown channels are dropped by the dispatcher.
func (p *Panel) Signal(ids ...ChannelID) {
	p.log.Debug("signal", zap.Any("channels", ids))
	p.queue.Push(eventsFor(EventSignal, ids)...)
}

// EndSignal asks each channel to stop blinking.
func (p *Panel) EndSignal(ids ...ChannelID) {
	p.log.Debug("end signal", zap.Any("channels", ids))
	p.queue.Push(eventsFor(EventEndSignal, ids)...)
}

// Stop moves every registered channel to its terminal state and shuts the
// dispatcher down, blocking until it has exited. Every pin has been driven
// low when Stop returns. Hardware faults raised while stopping are returned.
func (p *Panel) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		<-p.dispatcher.Done()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	ids := p.registry.IDs()
	p.log.Info("stopping all channels", zap.Int("count", len(ids)))
	p.queue.Push(append(eventsFor(EventStop, ids), Event{Kind: EventShutdown})...)
	<-p.dispatcher.Done()
	return p.dispatcher.stopErrors()
}

// Destroy unregisters channels, forcing their pins low.
func (p *Panel) Destroy(ids ...ChannelID) error {
	return p.registry.Remove(ids...)
}

// DestroyAll unregisters every channel, forcing all pins low.
func (p *Panel) DestroyAll() error {
	p.log.Info("destroying all channels")
	return p.registry.RemoveAll()
}

// State returns the state of a registered channel.
func (p *Panel) State(id ChannelID) (State, error) {
	m, ok := p.registry.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return m.State(), nil
}

// Channels returns every registered channel in id order.
func (p *Panel) Channels() []ChannelInfo {
	ids := p.registry.IDs()
	infos := make([]ChannelInfo, 0, len(ids))
	for _, id := range ids {
		m, ok := p.registry.Get(id)
		if !ok {
			continue
		}
		infos = append(infos, ChannelInfo{ID: id, State: m.State(), Actions: m.Actions()})
	}
	return infos
}

// Pending returns the number of queued events not yet dispatched.
func (p *Panel) Pending() int {
	return p.queue.Len()
}
