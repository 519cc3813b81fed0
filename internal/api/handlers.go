package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pv/obd-monitor-go/internal/bridge"
	"github.com/pv/obd-monitor-go/internal/monitor"
	"github.com/pv/obd-monitor-go/internal/obd"
)

type Handlers struct {
	monitor *monitor.Monitor
}

func NewHandlers(m *monitor.Monitor) *Handlers {
	return &Handlers{monitor: m}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// errorStatus maps bridge timeouts to 504, everything else to 502
func errorStatus(err error) int {
	if errors.Is(err, bridge.ErrTimeout) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// GetStatus returns engine and stream state
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.monitor.Status())
}

// GetLatestSamples returns the most recent sample per PID
// GET /api/samples/latest
func (h *Handlers) GetLatestSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.monitor.LatestSamples()
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"samples": samples,
	})
}

// GetDTCHistory returns stored diagnostic events, newest first
// GET /api/dtc/history?limit=100
func (h *Handlers) GetDTCHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	events, err := h.monitor.DTCHistory(limit)
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"events": events,
	})
}

// ReadDTCs queries the vehicle for trouble codes
// POST /api/dtc/read?persist=true
func (h *Handlers) ReadDTCs(w http.ResponseWriter, r *http.Request) {
	persist := true
	if persistStr := r.URL.Query().Get("persist"); persistStr != "" {
		if p, err := strconv.ParseBool(persistStr); err == nil {
			persist = p
		}
	}

	codes, err := h.monitor.ReadDTCs(persist)
	if err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	if codes == nil {
		codes = []obd.DTC{}
	}
	h.writeJSON(w, map[string]interface{}{
		"codes":     codes,
		"persisted": persist,
	})
}

// ClearDTCs issues the clear command. The cleared state is not recorded
// here; POST /api/dtc/record-cleared does that when the caller chooses to.
// POST /api/dtc/clear
func (h *Handlers) ClearDTCs(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.ClearDTCs(); err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	h.writeJSON(w, map[string]string{"status": "cleared"})
}

// RecordCleared appends a cleared-state snapshot of the posted codes
// POST /api/dtc/record-cleared  body: {"codes": [{"code": "...", "description": "..."}]}
func (h *Handlers) RecordCleared(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Codes []obd.DTC `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Codes) == 0 {
		h.writeError(w, http.StatusBadRequest, "codes required")
		return
	}

	if err := h.monitor.RecordCleared(body.Codes); err != nil {
		h.writeError(w, errorStatus(err), err.Error())
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"status": "recorded",
		"count":  len(body.Codes),
	})
}
