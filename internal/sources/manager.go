package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Manager owns the name → adapter registry and adapter lifecycle.
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	enabled  map[string]bool
	logger   *log.Logger
}

// NewManager builds an empty registry.
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		adapters: make(map[string]Adapter),
		enabled:  make(map[string]bool),
		logger:   logger.WithPrefix("sources"),
	}
}

// Register adds an adapter under a name with its configured enable
// flag. Registering does not start it.
func (m *Manager) Register(name string, a Adapter, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.adapters[name]; dup {
		return fmt.Errorf("sources: %q already registered", name)
	}
	m.adapters[name] = a
	m.enabled[name] = enabled
	return nil
}

// Start starts one source by name.
func (m *Manager) Start(name string) error {
	m.mu.Lock()
	a, ok := m.adapters[name]
	if ok {
		m.enabled[name] = true
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("sources: unknown source %q", name)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("sources: start %s: %w", name, err)
	}
	m.logger.Info("source started", "source", name)
	return nil
}

// Stop stops one source by name. A disabled source is inert: no
// timers, no sockets.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	a, ok := m.adapters[name]
	if ok {
		m.enabled[name] = false
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("sources: unknown source %q", name)
	}
	if err := a.Stop(); err != nil {
		return fmt.Errorf("sources: stop %s: %w", name, err)
	}
	m.logger.Info("source stopped", "source", name)
	return nil
}

// StartEnabled starts every source whose enable flag is set. Failures
// are logged per source and do not stop the rest.
func (m *Manager) StartEnabled() {
	m.mu.RLock()
	var names []string
	for name, on := range m.enabled {
		if on {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	sort.Strings(names)
	for _, name := range names {
		if err := m.Start(name); err != nil {
			m.logger.Error("source failed to start", "source", name, "err", err)
		}
	}
}

// StopAll stops every registered source.
func (m *Manager) StopAll() {
	m.mu.RLock()
	var names []string
	for name := range m.adapters {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		_ = m.Stop(name)
	}
}

// Status returns per-source status snapshots.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.adapters))
	for name, a := range m.adapters {
		st := a.Status()
		st.Enabled = m.enabled[name]
		out[name] = st
	}
	return out
}
