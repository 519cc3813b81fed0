package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/pv/obd-monitor-go/internal/telemetry"
)

func sampleN(n int) telemetry.Sample {
	return telemetry.Sample{
		PID:        fmt.Sprintf("PID_%d", n),
		RecordedAt: telemetry.Timestamp(time.Now()),
		Status:     telemetry.StatusOK,
	}
}

func drain(sub *Subscription) []telemetry.Sample {
	var got []telemetry.Sample
	for {
		select {
		case s := <-sub.C():
			got = append(got, s)
		default:
			return got
		}
	}
}

func TestHubSubscribeAndCount(t *testing.T) {
	hub := NewHub(8)

	if hub.Count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.Count())
	}

	sub1 := hub.Subscribe()
	sub2 := hub.Subscribe()
	if hub.Count() != 2 {
		t.Errorf("expected 2 subscribers, got %d", hub.Count())
	}
	if sub1.Created().IsZero() {
		t.Error("expected a creation time")
	}

	sub1.Close()
	if hub.Count() != 1 {
		t.Errorf("expected 1 subscriber after close, got %d", hub.Count())
	}

	// Close is idempotent.
	sub1.Close()
	sub2.Close()
	if hub.Count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.Count())
	}
}

func TestHubDropOldestOnOverflow(t *testing.T) {
	hub := NewHub(256)
	sub := hub.Subscribe()
	defer sub.Close()

	batch := make([]telemetry.Sample, 257)
	for i := range batch {
		batch[i] = sampleN(i + 1)
	}
	hub.Publish(batch)

	got := drain(sub)
	if len(got) != 256 {
		t.Fatalf("expected exactly 256 buffered samples, got %d", len(got))
	}
	// Sample #1 was evicted; #2 is now oldest and #257 newest.
	if got[0].PID != "PID_2" {
		t.Errorf("expected oldest sample PID_2, got %s", got[0].PID)
	}
	if got[255].PID != "PID_257" {
		t.Errorf("expected newest sample PID_257, got %s", got[255].PID)
	}
	for _, s := range got {
		if s.PID == "PID_1" {
			t.Error("sample #1 should have been evicted")
		}
	}
}

func TestHubFanOutOrder(t *testing.T) {
	hub := NewHub(8)
	subA := hub.Subscribe()
	subB := hub.Subscribe()
	defer subA.Close()
	defer subB.Close()

	batch := []telemetry.Sample{sampleN(1), sampleN(2), sampleN(3)}
	hub.Publish(batch)

	for name, sub := range map[string]*Subscription{"A": subA, "B": subB} {
		got := drain(sub)
		if len(got) != 3 {
			t.Fatalf("subscriber %s: expected 3 samples, got %d", name, len(got))
		}
		for i, s := range got {
			if s.PID != batch[i].PID {
				t.Errorf("subscriber %s: sample %d: expected %s, got %s", name, i, batch[i].PID, s.PID)
			}
		}
	}
}

func TestHubDetachDoesNotAffectOthers(t *testing.T) {
	hub := NewHub(8)
	subA := hub.Subscribe()
	subB := hub.Subscribe()
	defer subB.Close()

	hub.Publish([]telemetry.Sample{sampleN(1)})
	subA.Close()
	hub.Publish([]telemetry.Sample{sampleN(2), sampleN(3)})

	got := drain(subB)
	if len(got) != 3 {
		t.Fatalf("subscriber B: expected 3 samples, got %d", len(got))
	}

	// A's channel is closed; the one delivered sample is still readable.
	if s, ok := <-subA.C(); !ok || s.PID != "PID_1" {
		t.Errorf("expected buffered PID_1 on closed subscription, got %v ok=%v", s.PID, ok)
	}
	if _, ok := <-subA.C(); ok {
		t.Error("expected A's channel to be closed")
	}
}

func TestHubPublishEmptyBatch(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(nil)
	if got := drain(sub); len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}
}

func TestHubConcurrentPublishAndClose(t *testing.T) {
	hub := NewHub(4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish([]telemetry.Sample{sampleN(i)})
		}
	}()

	// Subscribers attach and detach while the publisher runs.
	for i := 0; i < 100; i++ {
		sub := hub.Subscribe()
		drain(sub)
		sub.Close()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not finish; deadlock?")
	}
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe()

	hub.Shutdown()
	if hub.Count() != 0 {
		t.Errorf("expected 0 subscribers after shutdown, got %d", hub.Count())
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected channel closed after shutdown")
	}

	// Publishing into an empty hub is harmless.
	hub.Publish([]telemetry.Sample{sampleN(1)})
}
