package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultHeartbeatInterval = 30 * time.Second

// StreamHandler pushes the admin mirror to the browser over Server-Sent
// Events. Each connection follows its own session's panel.
type StreamHandler struct {
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler. A zero heartbeat uses 30s.
func NewStreamHandler(heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &StreamHandler{heartbeat: heartbeat}
}

// StreamFeedback handles GET /api/admin/stream?q=
// It sends a snapshot event with the filtered view on connect and after
// every panel change, and a heartbeat event while idle. Heartbeats keep the
// admin session alive; the stream ends when the session does.
func (h *StreamHandler) StreamFeedback(w http.ResponseWriter, r *http.Request) {
	console, ok := consoleOrReject(w, r)
	if !ok {
		return
	}
	applyFilter(console, r)

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		changed := console.Panel.Changed()
		if err := h.send(w, rc, "snapshot", console.Panel.View()); err != nil {
			log.Debug().Err(err).Msg("Admin stream closed")
			return
		}

	wait:
		for {
			select {
			case <-r.Context().Done():
				return
			case <-console.Done():
				// Logged out or reaped; the reconnect gets a 401.
				return
			case <-changed:
				break wait
			case <-ticker.C:
				console.Touch()
				if err := h.send(w, rc, "heartbeat", map[string]interface{}{
					"timestamp": time.Now(),
				}); err != nil {
					return
				}
			}
		}
	}
}

func (h *StreamHandler) send(w http.ResponseWriter, rc *http.ResponseController, eventType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	return rc.Flush()
}
