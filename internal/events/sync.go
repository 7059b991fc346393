package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// SyncFunc runs one sync cycle and reports its outcome.
type SyncFunc func(ctx context.Context, token string, pushOnly bool) (string, error)

// syncRequest asks the bridge to sync chat history with the account backend.
type syncRequest struct {
	Token    string `json:"token"`
	PushOnly bool   `json:"push_only,omitempty"`
}

// handleSync accepts a sync request and returns immediately; the outcome
// arrives as a sync_complete broadcast over the WebSocket.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sync == nil {
		http.Error(w, "sync not configured", http.StatusServiceUnavailable)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()

		status, err := s.sync(s.ctx, req.Token, req.PushOnly)
		if err != nil {
			s.logger.Printf("Sync failed: %v", err)
			status = "failed: " + err.Error()
		}
		s.NotifySyncComplete(SyncCompleteData{
			Status:   status,
			Duration: time.Since(start),
		})
	}()

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "syncing"})
}
