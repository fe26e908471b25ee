package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store owns every registered TypeConfig and its TypeState. It is safe
// for concurrent use; callers never need their own locking.
type Store struct {
	mu        sync.RWMutex
	typeConf  map[string]TypeConfig
	states    map[string]TypeState
	configDir string
	log       *logrus.Logger
}

// ConfigFileName is the name of the per-node type registration file,
// joined with configDir.
const ConfigFileName = "shared-state-config.json"

// New creates an empty Store rooted at configDir for persistence. Pass
// logrus.StandardLogger() for default behaviour.
func New(configDir string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		typeConf:  make(map[string]TypeConfig),
		states:    make(map[string]TypeState),
		configDir: configDir,
		log:       log,
	}
}

func (s *Store) configPath() string {
	return filepath.Join(s.configDir, ConfigFileName)
}

// Load reads the config file, replacing the in-memory registration set.
// An absent or malformed file is treated as "no registered types"
// rather than an error, per spec.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.typeConf = make(map[string]TypeConfig)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("store: read config: %w", err)
	}

	var conf map[string]TypeConfig
	if err := json.Unmarshal(raw, &conf); err != nil {
		s.log.WithError(err).Warn("store: malformed config file, treating as empty")
		s.mu.Lock()
		s.typeConf = make(map[string]TypeConfig)
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.typeConf = conf
	for name := range conf {
		if _, ok := s.states[name]; !ok {
			s.states[name] = make(TypeState)
		}
	}
	// Drop state for any type no longer registered.
	for name := range s.states {
		if _, ok := conf[name]; !ok {
			delete(s.states, name)
		}
	}
	return nil
}

// Save atomically rewrites the config file from the current
// registration set.
func (s *Store) Save() error {
	s.mu.RLock()
	conf := make(map[string]TypeConfig, len(s.typeConf))
	for k, v := range s.typeConf {
		conf[k] = v
	}
	s.mu.RUnlock()

	raw, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal config: %w", err)
	}
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir config dir: %w", err)
	}
	tmp := s.configPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write config: %w", err)
	}
	return os.Rename(tmp, s.configPath())
}

// Register creates or replaces a type's configuration and persists it.
// Re-registering an existing type never discards its TypeState.
func (s *Store) Register(cfg TypeConfig) error {
	if cfg.Name == "" || len(cfg.Name) > DataTypeNameMax {
		return ErrInvalidTypeName
	}
	if cfg.UpdateInterval <= 0 || cfg.BleachTTL <= 0 {
		return ErrInvalidConfig
	}

	s.mu.Lock()
	s.typeConf[cfg.Name] = cfg
	if _, ok := s.states[cfg.Name]; !ok {
		s.states[cfg.Name] = make(TypeState)
	}
	s.mu.Unlock()

	return s.Save()
}

// Unregister removes a type's configuration and deletes its state.
func (s *Store) Unregister(name string) error {
	s.mu.Lock()
	delete(s.typeConf, name)
	delete(s.states, name)
	s.mu.Unlock()
	return s.Save()
}

// Config returns the current TypeConfig for name.
func (s *Store) Config(name string) (TypeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.typeConf[name]
	if !ok {
		return TypeConfig{}, ErrUnknownDataType
	}
	return cfg, nil
}

// Configs returns a snapshot of every registered TypeConfig.
func (s *Store) Configs() []TypeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TypeConfig, 0, len(s.typeConf))
	for _, c := range s.typeConf {
		out = append(out, c)
	}
	return out
}

// Snapshot returns a deep copy of a type's current state.
func (s *Store) Snapshot(typeName string) (TypeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.states[typeName]
	if !ok {
		return nil, ErrUnknownDataType
	}
	return ts.Clone(), nil
}

// Insert adds or overwrites a locally authored record. The TTL is sized
// from the type's configuration (bleachTTL + updateInterval + 1s).
func (s *Store) Insert(typeName, key string, data json.RawMessage) error {
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.typeConf[typeName]
	if !ok {
		return ErrUnknownDataType
	}
	ts := s.states[typeName]
	ts[key] = StateEntry{Author: AuthorPlaceholder, TTL: cfg.InsertTTL(), Data: data}
	return nil
}

// Get returns a single record, or ok=false if absent.
func (s *Store) Get(typeName, key string) (StateEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.states[typeName]
	if !ok {
		return StateEntry{}, false, ErrUnknownDataType
	}
	e, ok := ts[key]
	return e, ok, nil
}
