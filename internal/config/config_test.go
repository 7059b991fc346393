package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsZeroConfig(t *testing.T) {
	m := NewManager(t.TempDir())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "data"))

	want := &Config{
		APIURL:       "https://api.example.com/v1",
		APIKey:       "sk-test",
		DefaultModel: "gpt-x",
		AccountURL:   "https://account.example.com",
	}
	if err := m.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}

	// The file is pretty-printed for hand editing.
	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"apiUrl\"") {
		t.Errorf("config not pretty-printed: %s", data)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(&Config{APIURL: "https://from-file", APIKey: "file-key"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("AIO_APIURL", "https://from-env")

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "https://from-env" {
		t.Errorf("env override not applied: %q", cfg.APIURL)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("unrelated field clobbered: %q", cfg.APIKey)
	}
}

func TestModelListsPersistence(t *testing.T) {
	m := NewManager(t.TempDir())

	// Missing files yield empty, non-nil lists.
	ids, err := m.LoadActivatedModels()
	if err != nil {
		t.Fatalf("LoadActivatedModels failed: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("expected empty list, got %v", ids)
	}

	if err := m.SaveActivatedModels([]string{"gpt-x", "local-llama"}); err != nil {
		t.Fatalf("SaveActivatedModels failed: %v", err)
	}
	ids, err = m.LoadActivatedModels()
	if err != nil {
		t.Fatalf("LoadActivatedModels failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "gpt-x" {
		t.Errorf("activated models mismatch: %v", ids)
	}

	if err := m.SaveFetchedModels([]Model{{ID: "gpt-x", OwnedBy: "openai"}}); err != nil {
		t.Fatalf("SaveFetchedModels failed: %v", err)
	}
	models, err := m.LoadFetchedModels()
	if err != nil {
		t.Fatalf("LoadFetchedModels failed: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gpt-x" || models[0].OwnedBy != "openai" {
		t.Errorf("fetched models mismatch: %v", models)
	}
}

func TestWatcherReloadsOnSave(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(&Config{APIURL: "https://v1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(m, func(cfg *Config) { reloaded <- cfg }, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := m.Save(&Config{APIURL: "https://v2"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.APIURL == "https://v2" {
				return
			}
		case <-deadline:
			t.Fatal("watcher never delivered the updated config")
		}
	}
}
