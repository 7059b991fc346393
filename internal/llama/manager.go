// Package llama manages a local llama-server inference process.
//
// The manager spawns the llama.cpp server binary for a GGUF model, forwards
// its stderr log to the application log, and confirms the server actually
// came up with an HTTP health check before reporting success. At most one
// local server runs at a time; starting a new one stops the old one first.
package llama

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Options configures a local server launch.
type Options struct {
	// ModelPath is the GGUF model file. Required.
	ModelPath string

	// Port the server listens on (127.0.0.1 only). Required.
	Port int

	// GPULayers is the number of layers offloaded to the GPU. Must be
	// positive; 99 offloads everything on common models.
	GPULayers int

	// ContextSize is the context window; 0 uses DefaultContextSize.
	ContextSize int
}

const (
	// DefaultContextSize matches llama-server's recommended desktop setting.
	DefaultContextSize = 4096

	// startupGrace is how long the process gets before the health probe
	// starts; model loading dominates this.
	startupGrace = 2 * time.Second

	// healthTimeout bounds the whole health probe.
	healthTimeout = 5 * time.Second
)

// Manager supervises the local inference process.
type Manager struct {
	// binary is the llama-server executable path.
	binary string
	logger *log.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	port int
}

// NewManager creates a manager around the llama-server binary at binaryPath.
// If logger is nil, a default logger writing to stderr is used.
func NewManager(binaryPath string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[llama] ", log.LstdFlags)
	}
	return &Manager{binary: binaryPath, logger: logger}
}

// Start launches llama-server and waits until it answers its health
// endpoint. Returns the OpenAI-compatible base URL of the local server.
//
// A server already running is stopped first. If the process exits early or
// never becomes healthy, it is killed and an error is returned.
func (m *Manager) Start(ctx context.Context, opts Options) (string, error) {
	if opts.GPULayers <= 0 {
		return "", fmt.Errorf("gpu layers must be positive (99 offloads everything)")
	}
	if opts.Port <= 0 {
		return "", fmt.Errorf("port is required")
	}
	if _, err := os.Stat(m.binary); err != nil {
		return "", fmt.Errorf("llama-server binary not found: %w", err)
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return "", fmt.Errorf("model file not found: %w", err)
	}

	contextSize := opts.ContextSize
	if contextSize <= 0 {
		contextSize = DefaultContextSize
	}

	// Stop any previous instance and give the OS a moment to free the port.
	if m.Stop() {
		time.Sleep(500 * time.Millisecond)
	}

	cmd := exec.Command(m.binary,
		"-m", opts.ModelPath,
		"--port", strconv.Itoa(opts.Port),
		"-ngl", strconv.Itoa(opts.GPULayers),
		"-c", strconv.Itoa(contextSize),
		"--host", "127.0.0.1",
	)

	// llama.cpp logs to stderr.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to capture stderr: %w", err)
	}

	m.logger.Printf("Starting llama-server: model=%s port=%d ngl=%d ctx=%d",
		opts.ModelPath, opts.Port, opts.GPULayers, contextSize)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start llama-server: %w", err)
	}

	go m.forwardLogs(stderr)

	// Reap the process whenever it exits so Running can use ProcessState.
	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case err := <-waitDone:
		return "", fmt.Errorf("llama-server exited during startup: %v", err)
	case <-time.After(startupGrace):
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return "", ctx.Err()
	}

	if err := m.healthCheck(ctx, opts.Port); err != nil {
		_ = cmd.Process.Kill()
		return "", fmt.Errorf("llama-server failed health check: %w", err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.port = opts.Port
	m.mu.Unlock()

	m.logger.Printf("llama-server healthy on port %d", opts.Port)
	return fmt.Sprintf("http://127.0.0.1:%d/v1", opts.Port), nil
}

// forwardLogs copies llama-server's stderr into the application log.
func (m *Manager) forwardLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		m.logger.Printf("llama-server: %s", scanner.Text())
	}
}

// healthCheck polls the server's health endpoint until it responds or the
// timeout elapses.
func (m *Manager) healthCheck(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	client := &http.Client{Timeout: time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("no response from %s", url)
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Stop kills the running server, if any, reporting whether one was running.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.port = 0
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return false
	}
	m.logger.Println("Stopping llama-server")
	_ = cmd.Process.Kill()
	return true
}

// Running reports whether the managed server process is still alive.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return false
	}
	return m.cmd.ProcessState == nil
}

// Port returns the running server's port, 0 when stopped.
func (m *Manager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Pid returns the running server's process id, 0 when stopped.
func (m *Manager) Pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}
