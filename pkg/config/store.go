package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingReader/pkg/utils"
	"github.com/spf13/cast"
)

// Store is the key/value configuration provider the speech backends read
// from. Keys are namespaced by engine, e.g. "openai.api_key".
type Store interface {
	Get(key string) string
	Set(key, value string) error
}

// MemoryStore keeps values in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore(values map[string]string) *MemoryStore {
	s := &MemoryStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *MemoryStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// EnvStore resolves keys from the process environment ("azure.key" reads
// AZURE_KEY). Set records an in-process override and never touches the
// environment itself.
type EnvStore struct {
	mu        sync.RWMutex
	overrides map[string]string
	lookup    func(string) string
}

func NewEnvStore() *EnvStore {
	return &EnvStore{
		overrides: make(map[string]string),
		lookup:    os.Getenv,
	}
}

func (s *EnvStore) Get(key string) string {
	s.mu.RLock()
	v, ok := s.overrides[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	return strings.TrimSpace(s.lookup(utils.EnvName(key)))
}

func (s *EnvStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[key] = value
	return nil
}

// GetString returns def when the key is unset or blank.
func GetString(s Store, key, def string) string {
	if v := strings.TrimSpace(s.Get(key)); v != "" {
		return v
	}
	return def
}

func GetInt(s Store, key string, def int) int {
	v, err := cast.ToIntE(strings.TrimSpace(s.Get(key)))
	if err != nil || s.Get(key) == "" {
		return def
	}
	return v
}

func GetBool(s Store, key string, def bool) bool {
	v, err := cast.ToBoolE(strings.TrimSpace(s.Get(key)))
	if err != nil || s.Get(key) == "" {
		return def
	}
	return v
}

func GetDuration(s Store, key string, def time.Duration) time.Duration {
	return parseDuration(strings.TrimSpace(s.Get(key)), def)
}

// Missing lists the keys that have no value.
func Missing(s Store, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(s.Get(k)) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}
