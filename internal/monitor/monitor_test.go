package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/pv/obd-monitor-go/internal/bridge"
	"github.com/pv/obd-monitor-go/internal/broadcast"
	"github.com/pv/obd-monitor-go/internal/config"
	"github.com/pv/obd-monitor-go/internal/engine"
	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/storage"
)

func newTestMonitor(t *testing.T) *Monitor {
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
	return New(eng, store, hub, bridge.New(16), 5*time.Second)
}

func TestMonitorLifecycle(t *testing.T) {
	mon := newTestMonitor(t)

	if err := mon.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sub, err := mon.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	select {
	case sample := <-sub.C():
		if sample.PID == "" {
			t.Error("expected a sample with a pid")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no sample received from the live stream")
	}

	// Persisted before broadcast; the latest view is already populated.
	samples, err := mon.LatestSamples()
	if err != nil {
		t.Fatalf("LatestSamples failed: %v", err)
	}
	if len(samples) == 0 {
		t.Error("expected persisted samples")
	}

	status := mon.Status()
	if status.State != "polling" || !status.Connected {
		t.Errorf("expected a connected polling status, got %+v", status)
	}
	if status.Subscribers != 1 {
		t.Errorf("expected 1 subscriber, got %d", status.Subscribers)
	}

	if err := mon.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// The stream drains its buffer, then reports closed.
	closed := false
	deadline := time.After(time.Second)
	for !closed {
		select {
		case _, ok := <-sub.C():
			closed = !ok
		case <-deadline:
			t.Fatal("subscription channel was not closed by shutdown")
		}
	}

	if _, err := mon.LatestSamples(); !errors.Is(err, bridge.ErrClosed) {
		t.Errorf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestMonitorClearThenRecord(t *testing.T) {
	mon := newTestMonitor(t)
	defer mon.Shutdown(5 * time.Second)

	if err := mon.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := mon.ClearDTCs(); err != nil {
		t.Fatalf("ClearDTCs failed: %v", err)
	}
	events, err := mon.DTCHistory(10)
	if err != nil {
		t.Fatalf("DTCHistory failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("clear alone must record nothing, got %d events", len(events))
	}

	codes := []obd.DTC{{Code: "P0301", Description: "Misfire"}}
	if err := mon.RecordCleared(codes); err != nil {
		t.Fatalf("RecordCleared failed: %v", err)
	}

	events, err = mon.DTCHistory(10)
	if err != nil {
		t.Fatalf("DTCHistory failed: %v", err)
	}
	if len(events) != 1 || !events[0].Cleared {
		t.Errorf("expected one cleared event, got %+v", events)
	}
}
