package protocol

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// #region registry
// Registry holds protocols in registration order. Registration order is
// the default tie-break between equally scored protocols.
type Registry struct {
	mu        sync.RWMutex
	protocols []*Protocol
	index     map[string]int
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
}

// Register normalizes and validates p, then appends it. A rejected protocol
// leaves the registry unchanged.
func (r *Registry) Register(p *Protocol) error {
	if p == nil {
		return fmt.Errorf("register: nil protocol")
	}
	Normalize(p)
	if err := Validate(p); err != nil {
		r.logger.Warn("protocol rejected", zap.String("protocol_id", p.ID), zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[p.ID]; exists {
		err := &RegistrationError{ProtocolID: p.ID, Problems: []error{ErrDuplicateProtocol}}
		r.logger.Warn("protocol rejected", zap.String("protocol_id", p.ID), zap.Error(err))
		return err
	}
	r.index[p.ID] = len(r.protocols)
	r.protocols = append(r.protocols, p)
	r.logger.Debug("protocol registered",
		zap.String("protocol_id", p.ID),
		zap.Int("stages", len(p.Stages)),
		zap.Int("selectors", len(p.Selectors)),
	)
	return nil
}

// RegisterDefinition builds and registers a protocol definition.
func (r *Registry) RegisterDefinition(d Definition) error {
	p, err := d.Build()
	if err != nil {
		r.logger.Warn("protocol rejected", zap.String("protocol_id", d.ID), zap.Error(err))
		return err
	}
	return r.Register(p)
}

// Protocols returns a snapshot of the registered protocols in order.
func (r *Registry) Protocols() []*Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Protocol, len(r.protocols))
	copy(out, r.protocols)
	return out
}

// Get looks a protocol up by id.
func (r *Registry) Get(id string) (*Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.protocols[i], true
}

// Len returns the number of registered protocols.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.protocols)
}

// #endregion registry
