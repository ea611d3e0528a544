package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"pidrive-backend/internal/drive"
)

// ProgressHandler streams transfer progress over Server-Sent Events.
type ProgressHandler struct {
	events *drive.Broadcaster
}

func NewProgressHandler(events *drive.Broadcaster) *ProgressHandler {
	return &ProgressHandler{events: events}
}

// Events serves the feed. Each notification goes out as an SSE event
// named after its kind with a JSON payload; consumers that fall behind
// miss intermediate byte counts, never the ordering.
func (h *ProgressHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeBadRequest(w, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.events.Subscribe()
	defer h.events.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
			flusher.Flush()
		}
	}
}
