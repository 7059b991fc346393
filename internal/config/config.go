// Package config persists the desktop client's settings in its data directory.
//
// Settings live in config.json and are read through viper so AIO_* environment
// variables can override individual values without touching the file. Model
// lists fetched from the relay and the user's activation choices are kept in
// sibling JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// FileName is the settings file kept in the data directory.
const FileName = "config.json"

// Config holds the client settings. A missing config.json yields the zero
// value; every field is optional until the user signs in or picks a model.
type Config struct {
	// APIURL is the base URL of the chat completion relay.
	APIURL string `json:"apiUrl" mapstructure:"apiUrl"`

	// APIKey authenticates against the relay.
	APIKey string `json:"apiKey" mapstructure:"apiKey"`

	// DefaultModel is the model id used when a message names none.
	DefaultModel string `json:"defaultModel" mapstructure:"defaultModel"`

	// LocalModelPath points at a GGUF file for the local inference server.
	LocalModelPath string `json:"localModelPath" mapstructure:"localModelPath"`

	// AccountURL is the base URL of the account and sync backend.
	AccountURL string `json:"accountUrl" mapstructure:"accountUrl"`
}

// Manager reads and writes the settings files under one data directory.
type Manager struct {
	dataDir string
	mu      sync.Mutex
}

// NewManager creates a manager rooted at dataDir. The directory is created on
// first save, not here.
func NewManager(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// Path returns the location of config.json.
func (m *Manager) Path() string {
	return filepath.Join(m.dataDir, FileName)
}

// Load reads the settings, applying AIO_* environment overrides on top of the
// file. A missing file is not an error.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(m.Path())
	v.SetConfigType("json")
	v.SetEnvPrefix("AIO")
	v.AutomaticEnv()
	for _, key := range []string{"apiUrl", "apiKey", "defaultModel", "localModelPath", "accountUrl"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the settings pretty-printed, replacing the file atomically so a
// crash mid-write never leaves a truncated config behind.
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeJSON(FileName, cfg)
}

// writeJSON marshals v pretty-printed into dataDir/name via a temp file and
// rename. Caller holds the lock.
func (m *Manager) writeJSON(name string, v any) error {
	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(m.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// readJSON unmarshals dataDir/name into v. Reports whether the file existed.
// Caller holds the lock.
func (m *Manager) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return true, nil
}
