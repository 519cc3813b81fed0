package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pv/obd-monitor-go/internal/bridge"
	"github.com/pv/obd-monitor-go/internal/broadcast"
	"github.com/pv/obd-monitor-go/internal/config"
	"github.com/pv/obd-monitor-go/internal/engine"
	"github.com/pv/obd-monitor-go/internal/monitor"
	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/storage"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

type testServer struct {
	*httptest.Server
	mon   *monitor.Monitor
	store storage.Store
	hub   *broadcast.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	vehicle := &config.Vehicle{
		Name:            "test-car",
		AdapterPort:     "sim0",
		PollingInterval: 0.05,
		PIDs:            []string{"RPM", "SPEED"},
	}
	connector := obd.NewSimConnector()
	connector.Latency = time.Millisecond

	store := storage.NewMemoryStore()
	hub := broadcast.NewHub(broadcast.DefaultCapacity)
	eng := engine.New(vehicle, connector, store, hub)
	br := bridge.New(16)
	mon := monitor.New(eng, store, hub, br, 5*time.Second)

	ts := httptest.NewServer(NewServer(NewHandlers(mon)))
	t.Cleanup(func() {
		ts.Close()
		mon.Shutdown(5 * time.Second)
	})
	return &testServer{Server: ts, mon: mon, store: store, hub: hub}
}

func decodeJSON(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestAPIStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status struct {
		Vehicle     string `json:"vehicle"`
		State       string `json:"state"`
		Connected   bool   `json:"connected"`
		Subscribers int    `json:"subscribers"`
	}
	decodeJSON(t, resp, &status)

	if status.Vehicle != "test-car" {
		t.Errorf("expected vehicle test-car, got %q", status.Vehicle)
	}
	if status.State != "idle" || status.Connected {
		t.Errorf("expected idle and disconnected, got %+v", status)
	}
	if status.Subscribers != 0 {
		t.Errorf("expected 0 subscribers, got %d", status.Subscribers)
	}
}

func TestAPILatestSamples(t *testing.T) {
	ts := newTestServer(t)

	at := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	seed := []telemetry.Sample{
		{PID: "SPEED", RecordedAt: at, Status: telemetry.StatusOK, Value: obd.Float(40), Unit: "kph"},
		{PID: "RPM", RecordedAt: at, Status: telemetry.StatusOK, Value: obd.Float(800), Unit: "rpm"},
	}
	if err := ts.store.InsertSamples(seed); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/samples/latest")
	if err != nil {
		t.Fatalf("GET /api/samples/latest failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Samples []telemetry.Sample `json:"samples"`
	}
	decodeJSON(t, resp, &body)

	if len(body.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(body.Samples))
	}
	if body.Samples[0].PID != "RPM" || body.Samples[1].PID != "SPEED" {
		t.Errorf("expected pid order RPM, SPEED; got %s, %s", body.Samples[0].PID, body.Samples[1].PID)
	}
	if body.Samples[0].Value == nil || *body.Samples[0].Value != 800 {
		t.Errorf("expected RPM value 800, got %v", body.Samples[0].Value)
	}
}

func TestAPIRecordClearedRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	payload := `{"codes": [{"code": "P0301", "description": "Misfire"}]}`
	resp, err := http.Post(ts.URL+"/api/dtc/record-cleared", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/dtc/record-cleared failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/dtc/history")
	if err != nil {
		t.Fatalf("GET /api/dtc/history failed: %v", err)
	}
	var body struct {
		Events []telemetry.DTCEvent `json:"events"`
	}
	decodeJSON(t, resp, &body)

	if len(body.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(body.Events))
	}
	e := body.Events[0]
	if e.Code != "P0301" || e.Description != "Misfire" || !e.Cleared {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestAPIRecordClearedBadRequest(t *testing.T) {
	ts := newTestServer(t)

	for name, payload := range map[string]string{
		"invalid json": `{nope`,
		"empty codes":  `{"codes": []}`,
	} {
		resp, err := http.Post(ts.URL+"/api/dtc/record-cleared", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("%s: request failed: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestAPIDTCHistoryLimit(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		if err := ts.store.AppendDTCs([]obd.DTC{{Code: "P0100"}}, false); err != nil {
			t.Fatalf("seeding store failed: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/dtc/history?limit=2")
	if err != nil {
		t.Fatalf("GET /api/dtc/history failed: %v", err)
	}
	var body struct {
		Events []telemetry.DTCEvent `json:"events"`
	}
	decodeJSON(t, resp, &body)

	if len(body.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(body.Events))
	}
}

func TestAPIReadDTCsNotConnected(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/dtc/read", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/dtc/read failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 when not connected, got %d", resp.StatusCode)
	}

	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestAPIReadDTCsHealthyVehicle(t *testing.T) {
	ts := newTestServer(t)

	if err := ts.mon.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Post(ts.URL+"/api/dtc/read", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/dtc/read failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Codes     []obd.DTC `json:"codes"`
		Persisted bool      `json:"persisted"`
	}
	decodeJSON(t, resp, &body)

	// The simulated vehicle is healthy: an empty list, never null.
	if body.Codes == nil || len(body.Codes) != 0 {
		t.Errorf("expected an empty code list, got %v", body.Codes)
	}
	if !body.Persisted {
		t.Error("expected persisted=true by default")
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/dtc/read")
	if err != nil {
		t.Fatalf("GET /api/dtc/read failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAPIStreamSamples(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	// The subscription attaches when the handler runs; keep publishing
	// until the event comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		sample := telemetry.Sample{
			PID:        "RPM",
			RecordedAt: telemetry.Timestamp(time.Now()),
			Status:     telemetry.StatusOK,
			Value:      obd.Float(2450),
		}
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				ts.hub.Publish([]telemetry.Sample{sample})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no SSE data received: %v", scanner.Err())
	}
	if event != "sample" {
		t.Errorf("expected event type sample, got %q", event)
	}

	var sample telemetry.Sample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		t.Fatalf("failed to decode SSE payload: %v", err)
	}
	if sample.PID != "RPM" {
		t.Errorf("expected pid RPM, got %q", sample.PID)
	}
	if sample.Value == nil || *sample.Value != 2450 {
		t.Errorf("expected value 2450, got %v", sample.Value)
	}
}
