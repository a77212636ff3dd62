package panel

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type machineFactory func(id ChannelID) (*Machine, error)

// Registry owns the machines keyed by channel id. The mutex guards the maps
// only; machines are built and closed outside it. An id being built is held
// in creating so no other caller touches its pin meanwhile.
type Registry struct {
	mu       sync.Mutex
	machines map[ChannelID]*Machine
	creating map[ChannelID]struct{}
	factory  machineFactory
	log      *zap.Logger
}

func newRegistry(factory machineFactory, log *zap.Logger) *Registry {
	return &Registry{
		machines: make(map[ChannelID]*Machine),
		creating: make(map[ChannelID]struct{}),
		factory:  factory,
		log:      log,
	}
}

// reserve claims id for construction. It fails if the id is registered or
// already being built by another caller.
func (r *Registry) reserve(id ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[id]; ok {
		return false
	}
	if _, ok := r.creating[id]; ok {
		return false
	}
	r.creating[id] = struct{}{}
	return true
}

// Create registers a machine for each id that is not registered yet.
// Duplicate ids, registered ids and ids another caller is creating right
// now are skipped.
func (r *Registry) Create(ids ...ChannelID) error {
	var errs []error
	for _, id := range dedupe(ids) {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidChannel, id))
			continue
		}
		if !r.reserve(id) {
			r.log.Debug("channel already registered", zap.Int("channel", int(id)))
			continue
		}

		m, err := r.factory(id)

		r.mu.Lock()
		delete(r.creating, id)
		if err == nil {
			r.machines[id] = m
		}
		r.mu.Unlock()

		if err != nil {
			errs = append(errs, fmt.Errorf("create channel %d: %w", id, err))
			continue
		}
		r.log.Info("channel created", zap.Int("channel", int(id)))
	}
	return errors.Join(errs...)
}

// Get returns the machine for id.
func (r *Registry) Get(id ChannelID) (*Machine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[id]
	return m, ok
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []ChannelID {
	r.mu.Lock()
	ids := make([]ChannelID, 0, len(r.machines))
	for id := range r.machines {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Remove unregisters and destroys the named machines.
func (r *Registry) Remove(ids ...ChannelID) error {
	var errs []error
	var removed []*Machine

	r.mu.Lock()
	for _, id := range dedupe(ids) {
		m, ok := r.machines[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %d", ErrUnknownChannel, id))
			continue
		}
		delete(r.machines, id)
		removed = append(removed, m)
	}
	r.mu.Unlock()

	return errors.Join(append(errs, r.destroy(removed))...)
}

// RemoveAll unregisters and destroys every machine.
func (r *Registry) RemoveAll() error {
	r.mu.Lock()
	removed := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		removed = append(removed, m)
	}
	r.machines = make(map[ChannelID]*Machine)
	r.mu.Unlock()

	return r.destroy(removed)
}

func (r *Registry) destroy(ms []*Machine) error {
	var errs []error
	for _, m := range ms {
		if err := m.Close(); err != nil {
			r.log.Error("destroy channel", zap.Int("channel", int(m.ID())), zap.Error(err))
			errs = append(errs, fmt.Errorf("destroy channel %d: %w", m.ID(), err))
			continue
		}
		r.log.Info("channel destroyed", zap.Int("channel", int(m.ID())))
	}
	return errors.Join(errs...)
}

func dedupe(ids []ChannelID) []ChannelID {
	seen := make(map[ChannelID]bool, len(ids))
	out := make([]ChannelID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
