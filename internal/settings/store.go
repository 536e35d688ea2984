// Package settings implements the persisted key/value store backing the
// runtime: grouped reads, typed defaults, change notification, and
// write-before-signal flush ordering. Storage is a YAML file managed through
// viper; keys are slash-delimited paths such as "scripts/hotkeys/<id>".
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"bindkit/internal/shared/logging"
)

const configFileName = "config.yaml"

// ChangeHandler observes a single key mutation after it has been flushed.
type ChangeHandler func(key string)

// Store is a flush-on-write settings store. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	v        *viper.Viper
	path     string
	logger   logging.Logger
	handlers []ChangeHandler
}

// Open loads (or creates) the settings file under dir and registers the
// typed defaults for every known key group.
func Open(dir string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	v := newViper()
	path := filepath.Join(dir, configFileName)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	s := &Store{v: v, path: path, logger: logging.OrNop(logger)}
	registerDefaults(v)
	return s, nil
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("/"))
	v.SetConfigType("yaml")
	return v
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// OnChange registers a handler invoked after every flushed mutation.
func (s *Store) OnChange(handler ChangeHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// GetString returns the value for key, falling back to the registered default.
func (s *Store) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(key)
}

// GetBool returns the boolean value for key.
func (s *Store) GetBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(key)
}

// GetInt returns the integer value for key.
func (s *Store) GetInt(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetInt(key)
}

// GetFloat returns the float value for key.
func (s *Store) GetFloat(key string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetFloat64(key)
}

// GetStringSlice returns the list value for key.
func (s *Store) GetStringSlice(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetStringSlice(key)
}

// IsSet reports whether key has an explicit (non-default) or default value.
func (s *Store) IsSet(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.IsSet(key)
}

// Group returns the immediate children of prefix as a flat map of
// child-name to value. Nested groups come back as map[string]any.
func (s *Store) Group(prefix string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.v.Sub(prefix)
	if sub == nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	for k, val := range sub.AllSettings() {
		out[k] = val
	}
	return out
}

// GroupStrings returns the immediate children of prefix whose values are
// strings, e.g. the scripts/external and scripts/hotkeys maps.
func (s *Store) GroupStrings(prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range s.Group(prefix) {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

// Set writes key, flushes to disk, then notifies change handlers. The flush
// happens before notification so observers always see persisted state.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	s.v.Set(key, value)
	err := s.flushLocked()
	handlers := append([]ChangeHandler(nil), s.handlers...)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, h := range handlers {
		h(key)
	}
	return nil
}

// Delete removes key (or an entire group) from the store, flushes, and
// notifies. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	if !s.v.IsSet(key) {
		s.mu.Unlock()
		return nil
	}

	// Viper has no delete primitive; rebuild the tree without the key.
	settings := s.v.AllSettings()
	pruneKey(settings, strings.Split(strings.ToLower(key), "/"))

	rebuilt := newViper()
	rebuilt.SetConfigFile(s.path)
	for k, v := range settings {
		rebuilt.Set(k, v)
	}
	registerDefaults(rebuilt)
	s.v = rebuilt

	err := s.flushLocked()
	handlers := append([]ChangeHandler(nil), s.handlers...)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, h := range handlers {
		h(key)
	}
	return nil
}

// Flush persists the current state, retrying once on failure.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if err := s.v.WriteConfigAs(s.path); err != nil {
		s.logger.Warn("settings: write failed, retrying: %v", err)
		if err := s.v.WriteConfigAs(s.path); err != nil {
			s.logger.Error("settings: write failed after retry: %v", err)
			return fmt.Errorf("write settings: %w", err)
		}
	}
	return nil
}

func pruneKey(tree map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		delete(tree, path[0])
		return
	}
	child, ok := tree[path[0]].(map[string]any)
	if !ok {
		return
	}
	pruneKey(child, path[1:])
	if len(child) == 0 {
		delete(tree, path[0])
	}
}
