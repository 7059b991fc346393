package events

import (
	"encoding/json"
	"net/http"

	"github.com/aiodesk/aio/internal/relay"
)

// chatStreamRequest starts a completion stream for one conversation.
type chatStreamRequest struct {
	AssistantID string              `json:"assistant_id"`
	TopicID     string              `json:"topic_id"`
	Model       string              `json:"model,omitempty"`
	Messages    []relay.ChatMessage `json:"messages"`
}

// chatStopRequest cancels a conversation's in-flight stream.
type chatStopRequest struct {
	AssistantID string `json:"assistant_id"`
	TopicID     string `json:"topic_id"`
}

// handleChatStream accepts a stream request and returns immediately; the
// completion arrives as chat_chunk broadcasts over the WebSocket.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssistantID == "" || req.TopicID == "" {
		http.Error(w, "assistant_id and topic_id are required", http.StatusBadRequest)
		return
	}

	cfg := s.settings()
	if cfg.APIURL == "" {
		http.Error(w, "no API URL configured", http.StatusConflict)
		return
	}
	model := req.Model
	if model == "" {
		model = cfg.DefaultModel
	}
	if model == "" {
		http.Error(w, "no model selected", http.StatusConflict)
		return
	}

	// The stream context descends from the server, not the request: the
	// response is written before the stream ends.
	streamCtx, release := s.registry.Begin(s.ctx, req.AssistantID, req.TopicID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		// Errors already reach the frontend as an error chunk.
		_ = s.relay.Stream(streamCtx, cfg.APIURL, cfg.APIKey, model,
			req.AssistantID, req.TopicID, req.Messages, s)
	}()

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "streaming"})
}

// handleChatStop cancels the conversation's stream, if one is running.
func (s *Server) handleChatStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AssistantID == "" || req.TopicID == "" {
		http.Error(w, "assistant_id and topic_id are required", http.StatusBadRequest)
		return
	}

	s.registry.Stop(req.AssistantID, req.TopicID)

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
}
