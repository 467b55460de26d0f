package resilience

import (
	"sync"
	"time"
)

// CircuitBreakerRegistry manages one circuit breaker per quote source.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry sharing one config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// Get returns or creates a circuit breaker for the given name.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, r.config)
	r.breakers[name] = cb
	return cb
}

// SourceStatus is the last observed behaviour of a quote source.
type SourceStatus struct {
	Name        string        `json:"name" yaml:"name"`
	Available   bool          `json:"available" yaml:"available"`
	LastCheck   time.Time     `json:"last_check" yaml:"last_check"`
	LastSuccess time.Time     `json:"last_success,omitempty" yaml:"last_success,omitempty"`
	LastError   string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Latency     time.Duration `json:"latency" yaml:"latency"`
	Calls       int64         `json:"calls" yaml:"calls"`
}

// SourceMonitor records per-source availability as seen by the resolver.
type SourceMonitor struct {
	mu      sync.RWMutex
	sources map[string]*SourceStatus
}

// NewSourceMonitor creates a new source monitor.
func NewSourceMonitor() *SourceMonitor {
	return &SourceMonitor{
		sources: make(map[string]*SourceStatus),
	}
}

// Observe records the outcome of one call. available is false only for
// transient failures; a source answering "not found" is still reachable.
func (m *SourceMonitor) Observe(name string, available bool, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.sources[name]
	if !ok {
		status = &SourceStatus{Name: name}
		m.sources[name] = status
	}

	now := time.Now()
	status.Available = available
	status.LastCheck = now
	status.Latency = latency
	status.Calls++
	status.LastError = ""
	if err != nil {
		status.LastError = err.Error()
	}
	if available {
		status.LastSuccess = now
	}
}

// Status returns a copy of the status of a source.
func (m *SourceMonitor) Status(name string) (SourceStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status, ok := m.sources[name]; ok {
		return *status, true
	}
	return SourceStatus{}, false
}
