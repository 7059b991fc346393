// Package events bridges backend activity to the desktop frontend.
//
// The frontend holds one WebSocket to this server and receives chat_chunk
// messages while a completion streams and sync_complete messages when a sync
// cycle finishes. Two HTTP endpoints let the frontend start and stop
// completion streams; the stream results come back over the WebSocket, not
// the HTTP response.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/aiodesk/aio/internal/config"
	"github.com/aiodesk/aio/internal/relay"
)

// MessageType defines the type of a bridge message.
type MessageType string

const (
	// MessageTypeChatChunk carries one streamed completion delta.
	MessageTypeChatChunk MessageType = "chat_chunk"

	// MessageTypeSyncComplete announces a finished sync cycle.
	MessageTypeSyncComplete MessageType = "sync_complete"
)

const (
	// eventBuffer bounds the queue between producers and the fanout loop.
	eventBuffer = 100

	// writeTimeout caps how long one client write may block the fanout.
	writeTimeout = 5 * time.Second
)

// Message is one broadcast frame sent to every connected client.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompleteData describes a finished sync cycle.
type SyncCompleteData struct {
	Status      string        `json:"status"`
	RowsSent    int           `json:"rows_sent"`
	RowsApplied int           `json:"rows_applied"`
	Duration    time.Duration `json:"duration"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on; 0 picks a free port.
	Port int

	// Relay streams completions for /chat/stream.
	Relay *relay.Client

	// Registry enforces one stream per conversation.
	Registry *relay.Registry

	// Settings returns the current client settings. Called per request so
	// config reloads take effect without a restart.
	Settings func() *config.Config

	// Sync runs one history sync cycle for /sync. Optional; without it the
	// endpoint answers 503.
	Sync SyncFunc

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// Server manages WebSocket connections and the chat stream endpoints.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	relay    *relay.Client
	registry *relay.Registry
	settings func() *config.Config
	sync     SyncFunc

	conns   map[*websocket.Conn]bool
	connsMu sync.RWMutex

	events chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates the event bridge. Relay, Registry and Settings are
// required.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Relay == nil || cfg.Registry == nil || cfg.Settings == nil {
		return nil, fmt.Errorf("relay, registry and settings are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:     fmt.Sprintf(":%d", cfg.Port),
		relay:    cfg.Relay,
		registry: cfg.Registry,
		settings: cfg.Settings,
		sync:     cfg.Sync,
		conns:    make(map[*websocket.Conn]bool),
		events:   make(chan Message, eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}, nil
}

// Start listens and serves in the background; it returns once the listener
// is bound, so GetAddr is valid immediately after.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chat/stream", s.handleChatStream)
	mux.HandleFunc("/chat/stop", s.handleChatStop)
	mux.HandleFunc("/sync", s.handleSync)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanout()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Event bridge listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Event bridge serve error: %v", err)
		}
	}()

	return nil
}

// Stop closes all client connections and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(s.conns, conn)
	}
	s.connsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Event bridge stopped")
	return nil
}

// Broadcast queues a message for every connected client. It never blocks;
// if the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.events <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("Event queue full, dropping %s", msg.Type)
	}
}

// Emit implements relay.Emitter: every streamed chunk becomes a chat_chunk
// broadcast.
func (s *Server) Emit(chunk relay.Chunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Printf("Marshal chunk: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeChatChunk, Data: data})
}

// NotifySyncComplete broadcasts a sync_complete message.
func (s *Server) NotifySyncComplete(data SyncCompleteData) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Marshal sync completion: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeSyncComplete, Data: payload})
}

// fanout delivers queued messages to every connection. Writes happen on a
// snapshot of the connection set so a slow client never holds the lock.
func (s *Server) fanout() {
	defer s.wg.Done()

	for {
		var msg Message
		select {
		case <-s.ctx.Done():
			return
		case msg = <-s.events:
		}

		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Printf("Marshal %s message: %v", msg.Type, err)
			continue
		}

		s.connsMu.RLock()
		targets := make([]*websocket.Conn, 0, len(s.conns))
		for conn := range s.conns {
			targets = append(targets, conn)
		}
		s.connsMu.RUnlock()

		for _, conn := range targets {
			if err := s.writeFrame(conn, data); err != nil {
				s.logger.Printf("Dropping client: %v", err)
				s.dropConn(conn)
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The frontend is a local desktop webview with an app-scheme origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.connsMu.Lock()
	s.conns[conn] = true
	total := len(s.conns)
	s.connsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", total)

	go s.drainConn(conn)
}

// drainConn keeps the connection alive and notices client disconnects.
// Client messages are not processed; the HTTP endpoints carry all requests.
func (s *Server) drainConn(conn *websocket.Conn) {
	defer s.dropConn(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) dropConn(conn *websocket.Conn) {
	s.connsMu.Lock()
	_, tracked := s.conns[conn]
	delete(s.conns, conn)
	total := len(s.conns)
	s.connsMu.Unlock()

	if tracked {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", total)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"streams": s.registry.Active(),
	})
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}
