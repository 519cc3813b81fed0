package api

import "net/http"

// NewServer builds the HTTP route table over the handlers
func NewServer(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/samples/latest", h.GetLatestSamples)
	mux.HandleFunc("GET /api/stream", h.StreamSamples)
	mux.HandleFunc("GET /api/dtc/history", h.GetDTCHistory)
	mux.HandleFunc("POST /api/dtc/read", h.ReadDTCs)
	mux.HandleFunc("POST /api/dtc/clear", h.ClearDTCs)
	mux.HandleFunc("POST /api/dtc/record-cleared", h.RecordCleared)

	return mux
}
