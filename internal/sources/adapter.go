// Package sources contains the feed adapters and the source manager.
//
// Every adapter speaks the same small contract: Start, Stop, Status.
// Records are handed to a callback registered at construction; errors
// stay inside the adapter and surface through Status and the logs.
package sources

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"skysignal/internal/signal"
)

// RawFunc receives one adapter-shaped record tagged with its source.
// The payload is one of the envelope types in internal/signal.
type RawFunc func(src signal.Source, payload any)

// Status is a point-in-time snapshot of an adapter.
type Status struct {
	Enabled    bool      `json:"enabled"`
	Connected  bool      `json:"connected"`
	Messages   int64     `json:"messages"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error,omitempty"`
}

// Adapter is the producer contract shared by every source.
type Adapter interface {
	Name() string
	// Start begins producing. Idempotent: starting a running adapter
	// is a no-op.
	Start() error
	// Stop releases sockets and timers. Idempotent.
	Stop() error
	Status() Status
}

// ErrAuthRejected marks a 401/403 from an upstream API. The adapter
// suspends itself; it will not retry until the operator toggles the
// source.
var ErrAuthRejected = errors.New("sources: credentials rejected")

// state is the shared bookkeeping embedded in each adapter.
type state struct {
	mu        sync.Mutex
	enabled   bool
	connected bool
	messages  int64
	lastSeen  time.Time
	lastErr   string
	suspended bool
}

func (s *state) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Enabled:    s.enabled,
		Connected:  s.connected,
		Messages:   s.messages,
		LastUpdate: s.lastSeen,
		LastError:  s.lastErr,
	}
}

func (s *state) setConnected(c bool) {
	s.mu.Lock()
	s.connected = c
	s.mu.Unlock()
}

func (s *state) countMessage() {
	s.mu.Lock()
	s.messages++
	s.lastSeen = time.Now().UTC()
	s.mu.Unlock()
}

func (s *state) setError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

var secretRe = regexp.MustCompile(`(?i)api[_-]?key|token|secret|password|authorization|bearer`)

// redact masks values whose key names look secret-bearing, so adapter
// logs never leak credentials.
func redact(key, value string) string {
	if secretRe.MatchString(key) && value != "" {
		return "[redacted]"
	}
	return value
}
