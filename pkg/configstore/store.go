// Package configstore is a typed key/value configuration store with
// scoped get/set and change subscribers. Writes are atomic and
// synchronously visible to subsequent getters; every mutation publishes a
// settings_changed event before returning.
package configstore

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/netassist/core/pkg/eventlog"
	"github.com/netassist/core/pkg/models"
)

// ConfigIOError is returned from Set when the backing file write fails.
// Reads never fail — a missing key simply returns ok=false.
type ConfigIOError struct {
	Path string
	Err  error
}

func (e *ConfigIOError) Error() string {
	return fmt.Sprintf("config: failed to persist %s: %v", e.Path, e.Err)
}
func (e *ConfigIOError) Unwrap() error { return e.Err }

// subscription pairs a key prefix with its callback.
type subscription struct {
	prefix string
	cb     func(key string, value any)
}

// Store is the runtime-mutable ConfigStore.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
	subs   map[int]subscription
	nextID int

	events *eventlog.Log
	path   string // backing file; empty disables persistence (tests)
}

var _ models.ConfigReader = (*Store)(nil)

// New creates a Store backed by path (a YAML file under the application data
// directory) and wired to events for settings_changed notifications. If the
// file exists it is loaded; otherwise Store starts empty.
func New(path string, events *eventlog.Log) (*Store, error) {
	s := &Store{
		values: make(map[string]any),
		subs:   make(map[int]subscription),
		events: events,
		path:   path,
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, &ConfigIOError{Path: path, Err: err}
	}
	var loaded map[string]any
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, &ConfigIOError{Path: path, Err: err}
	}
	s.values = loaded
	if s.values == nil {
		s.values = make(map[string]any)
	}
	return s, nil
}

// Get returns the value for key and whether it was present. Reads never
// fail — an absent key simply returns (nil, false).
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString is a typed convenience accessor.
func (s *Store) GetString(key, fallback string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return fallback
}

// GetInt is a typed convenience accessor.
func (s *Store) GetInt(key string, fallback int) int {
	if v, ok := s.Get(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return fallback
}

// GetFloat is a typed convenience accessor.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	if v, ok := s.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// GetBool is a typed convenience accessor.
func (s *Store) GetBool(key string, fallback bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// Set writes key=value, persists it to the backing file, and publishes the
// settings_changed event BEFORE the new value becomes visible to any
// subsequent Get. Persistence is attempted first, against a snapshot
// already carrying the new value: if the file write fails, Set returns the
// ConfigIOError with the in-memory store untouched and no event published,
// so the prior value stays authoritative. Only after the write is durable
// does Set append the event and then install the value, so any goroutine
// that Gets the new value runs after the event subscriber(s) have already
// observed the change.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	before, existed := s.values[key]
	snapshot := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		snapshot[k] = v
	}
	snapshot[key] = value
	s.mu.Unlock()

	if err := s.persist(snapshot); err != nil {
		slog.Warn("config: write failed, keeping prior value", "key", key, "error", err)
		return err
	}

	if s.events != nil {
		diff := map[string]any{"key": key, "before": before, "after": value, "existed": existed}
		if _, err := s.events.Append(eventlog.TypeSettingsChanged, diff); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.values[key] = value
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if strings.HasPrefix(key, sub.prefix) {
			sub.cb(key, value)
		}
	}
	return nil
}

// Subscribe registers cb to be called whenever a key with the given prefix
// is set. Returns an unsubscribe function.
func (s *Store) Subscribe(keyPrefix string, cb func(key string, value any)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = subscription{prefix: keyPrefix, cb: cb}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// persist writes the full value map to the backing file as a self-describing
// YAML map. An empty s.path disables persistence (used by tests).
func (s *Store) persist(snapshot map[string]any) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return &ConfigIOError{Path: s.path, Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return &ConfigIOError{Path: s.path, Err: err}
	}
	return nil
}
