package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/aiodesk/aio/internal/config"
	"github.com/aiodesk/aio/internal/relay"
)

// startTestServer brings up an event bridge backed by the given provider URL.
func startTestServer(t *testing.T, apiURL string) *Server {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	srv, err := NewServer(&Config{
		Port:     0,
		Relay:    relay.NewClient(logger),
		Registry: relay.NewRegistry(),
		Settings: func() *config.Config {
			return &config.Config{APIURL: apiURL, APIKey: "key", DefaultModel: "gpt-x"}
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

// dialWS connects a WebSocket client to the bridge.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readMessage reads and decodes one broadcast frame.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read websocket frame: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode frame %s: %v", data, err)
	}
	return msg
}

// waitForClient blocks until the bridge has registered a connection.
func waitForClient(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for srv.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t, "http://unused")

	resp, err := http.Get("http://" + srv.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("unexpected health status %q", health.Status)
	}
}

func TestChatStreamBroadcastsChunks(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"hi"}}]}`+"\n\n")
		flusher.Flush()
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer provider.Close()

	srv := startTestServer(t, provider.URL)
	conn := dialWS(t, srv)
	waitForClient(t, srv)

	resp := postJSON(t, "http://"+srv.GetAddr()+"/chat/stream", chatStreamRequest{
		AssistantID: "a1",
		TopicID:     "t1",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	// First frame: the content delta. Second: the done marker.
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeChatChunk {
		t.Fatalf("expected chat_chunk, got %s", msg.Type)
	}
	var chunk relay.Chunk
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		t.Fatalf("failed to decode chunk: %v", err)
	}
	if chunk.Content != "hi" || chunk.AssistantID != "a1" || chunk.TopicID != "t1" {
		t.Errorf("unexpected chunk: %+v", chunk)
	}

	msg = readMessage(t, conn)
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		t.Fatalf("failed to decode chunk: %v", err)
	}
	if !chunk.Done {
		t.Errorf("expected done marker, got %+v", chunk)
	}
}

func TestChatStreamValidation(t *testing.T) {
	srv := startTestServer(t, "http://unused")

	resp := postJSON(t, "http://"+srv.GetAddr()+"/chat/stream", chatStreamRequest{
		AssistantID: "a1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing topic_id, got %d", resp.StatusCode)
	}
}

func TestChatStreamRequiresConfiguredAPI(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	srv, err := NewServer(&Config{
		Relay:    relay.NewClient(logger),
		Registry: relay.NewRegistry(),
		Settings: func() *config.Config { return &config.Config{} },
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	resp := postJSON(t, "http://"+srv.GetAddr()+"/chat/stream", chatStreamRequest{
		AssistantID: "a1",
		TopicID:     "t1",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for unconfigured API, got %d", resp.StatusCode)
	}
}

func TestChatStop(t *testing.T) {
	// The provider stalls until the request context dies, simulating a long
	// generation.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"thinking"}}]}`+"\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer provider.Close()

	srv := startTestServer(t, provider.URL)

	resp := postJSON(t, "http://"+srv.GetAddr()+"/chat/stream", chatStreamRequest{
		AssistantID: "a1",
		TopicID:     "t1",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for srv.registry.Active() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp = postJSON(t, "http://"+srv.GetAddr()+"/chat/stop", chatStopRequest{
		AssistantID: "a1",
		TopicID:     "t1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline = time.Now().Add(5 * time.Second)
	for srv.registry.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream still registered after stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifySyncComplete(t *testing.T) {
	srv := startTestServer(t, "http://unused")
	conn := dialWS(t, srv)
	waitForClient(t, srv)

	srv.NotifySyncComplete(SyncCompleteData{
		Status:      "full sync completed",
		RowsSent:    3,
		RowsApplied: 2,
		Duration:    1500 * time.Millisecond,
	})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("expected sync_complete, got %s", msg.Type)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data.RowsSent != 3 || data.RowsApplied != 2 {
		t.Errorf("unexpected payload: %+v", data)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast timestamp not set")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := startTestServer(t, "http://unused")

	for _, path := range []string{"/chat/stream", "/chat/stop"} {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.GetAddr(), path))
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected 405, got %d", path, resp.StatusCode)
		}
	}
}
