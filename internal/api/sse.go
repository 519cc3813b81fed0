package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pv/obd-monitor-go/internal/logger"
)

// StreamSamples sends the live sample stream as server-sent events.
// The subscription is detached when the client disconnects.
// GET /api/stream
func (h *Handlers) StreamSamples(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := h.monitor.Subscribe()
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	log := logger.Component("sse")
	log.Debug("stream client connected", "remote", r.RemoteAddr)

	defer func() {
		log.Debug("stream client disconnected",
			"remote", r.RemoteAddr,
			"duration", time.Since(sub.Created()))
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case sample, ok := <-sub.C():
			if !ok {
				// Hub shut down.
				return
			}
			data, err := json.Marshal(sample)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: sample\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
