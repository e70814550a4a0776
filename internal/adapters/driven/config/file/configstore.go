package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps configuration in a TOML file. Keys are addressed with
// dots ("engine.sample_rows"); on disk each prefix becomes a table:
//
//	[engine]
//	sample_rows = 50
//
//	[backend.headers]
//	X-Team = "data"
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// NewConfigStore opens config.toml inside configDir, creating the
// directory when needed. An empty configDir means ~/.tabula.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".tabula")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the raw value stored under key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

// GetString returns key as a string, or "" when absent or not a string.
func (s *ConfigStore) GetString(key string) string {
	val, _ := s.Get(key)
	str, _ := val.(string)
	return str
}

// GetInt returns key as an int. TOML decodes integers as int64.
func (s *ConfigStore) GetInt(key string) int {
	val, _ := s.Get(key)
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// GetBool returns key as a bool, or false.
func (s *ConfigStore) GetBool(key string) bool {
	val, _ := s.Get(key)
	b, _ := val.(bool)
	return b
}

// GetFloat returns key as a float64. Integers are converted, so
// `temperature = 1` reads as 1.0.
func (s *ConfigStore) GetFloat(key string) float64 {
	val, _ := s.Get(key)
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// GetStringMap returns the string entries of the table at key. A table
// loaded from disk is held as "key.name" entries, while a map set at
// runtime is held whole; both forms are merged. Non-string values are
// skipped. The result is nil when nothing matches.
func (s *ConfigStore) GetStringMap(key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result map[string]string
	add := func(k string, v any) {
		str, ok := v.(string)
		if !ok {
			return
		}
		if result == nil {
			result = make(map[string]string)
		}
		result[k] = str
	}

	switch v := s.data[key].(type) {
	case map[string]string:
		for k, val := range v {
			add(k, val)
		}
	case map[string]any:
		for k, val := range v {
			add(k, val)
		}
	}

	prefix := key + "."
	for k, val := range s.data {
		if name, ok := strings.CutPrefix(k, prefix); ok && name != "" {
			add(name, val)
		}
	}
	return result
}

// Set stores value under key and writes the file. Entries previously
// loaded beneath key are replaced, not merged.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := key + "."
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
		}
	}
	s.data[key] = value
	return s.save()
}

// Save writes the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save must be called with mu held.
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(nest(s.data))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load replaces the in-memory configuration with the file's contents.
// A missing file is an empty configuration.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = make(map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse %s: %w", s.filePath, err)
	}
	s.data = flatten(loaded, "")
	return nil
}

// Keys returns every configuration key, sorted.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// flatten turns nested tables into dot keys: {"a": {"b": 1}} → {"a.b": 1}.
func flatten(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(nested, k) {
				out[nk] = nv
			}
			continue
		}
		out[k] = v
	}
	return out
}

// table is a TOML table built by nest. Maps stored as values stay plain
// map types, so nest never writes into a caller's map.
type table map[string]any

// nest is the inverse of flatten. A key whose path runs through a value
// that is not a table keeps its dotted name at the top level.
func nest(flat map[string]any) table {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := table{}
	for _, k := range keys {
		parts := strings.Split(k, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p]
			if !ok {
				t := table{}
				node[p] = t
				node = t
				continue
			}
			t, isTable := child.(table)
			if !isTable {
				node = nil
				break
			}
			node = t
		}

		leaf := parts[len(parts)-1]
		if node == nil {
			root[k] = flat[k]
			continue
		}
		if _, taken := node[leaf]; taken {
			root[k] = flat[k]
			continue
		}
		node[leaf] = flat[k]
	}
	return root
}
