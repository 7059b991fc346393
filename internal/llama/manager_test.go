package llama

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// writeScript creates an executable shell script standing in for the
// llama-server binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llama-server")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, []byte("gguf"), 0644); err != nil {
		t.Fatalf("failed to write model: %v", err)
	}
	return path
}

func TestStartValidation(t *testing.T) {
	binary := writeScript(t, "exit 0")
	model := writeModel(t)
	m := NewManager(binary, testLogger())
	ctx := context.Background()

	if _, err := m.Start(ctx, Options{ModelPath: model, Port: 18080, GPULayers: 0}); err == nil {
		t.Error("expected error for zero gpu layers")
	}
	if _, err := m.Start(ctx, Options{ModelPath: model, Port: 0, GPULayers: 99}); err == nil {
		t.Error("expected error for missing port")
	}
	if _, err := m.Start(ctx, Options{ModelPath: model + ".missing", Port: 18080, GPULayers: 99}); err == nil {
		t.Error("expected error for missing model file")
	}

	missing := NewManager(binary+".missing", testLogger())
	if _, err := missing.Start(ctx, Options{ModelPath: model, Port: 18080, GPULayers: 99}); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestStartDetectsEarlyExit(t *testing.T) {
	binary := writeScript(t, "echo 'boot failed' >&2; exit 3")
	model := writeModel(t)
	m := NewManager(binary, testLogger())

	_, err := m.Start(context.Background(), Options{ModelPath: model, Port: 18081, GPULayers: 99})
	if err == nil {
		t.Fatal("expected error when the process exits immediately")
	}
	if !strings.Contains(err.Error(), "exited during startup") {
		t.Errorf("unexpected error: %v", err)
	}
	if m.Running() {
		t.Error("manager reports a dead process as running")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse port: %v", err)
	}

	m := NewManager("unused", testLogger())
	if err := m.healthCheck(context.Background(), port); err != nil {
		t.Errorf("health check against live server failed: %v", err)
	}
}

func TestStopWithoutServer(t *testing.T) {
	m := NewManager("unused", testLogger())

	if m.Stop() {
		t.Error("Stop reported a kill with no server running")
	}
	if m.Running() {
		t.Error("idle manager reports running")
	}
	if m.Port() != 0 {
		t.Errorf("idle manager reports port %d", m.Port())
	}
}
