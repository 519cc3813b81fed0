package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

// memoryStore keeps everything in process memory. Used for adapter-less
// demo runs and tests.
type memoryStore struct {
	mu      sync.RWMutex
	closed  bool
	samples []telemetry.Sample
	events  []telemetry.DTCEvent
}

func NewMemoryStore() Store {
	return &memoryStore{}
}

func (m *memoryStore) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *memoryStore) InsertSamples(samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.samples = append(m.samples, samples...)
	return nil
}

func (m *memoryStore) LatestSamples() ([]telemetry.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	// Later insertion wins ties on recorded_at.
	latest := make(map[string]telemetry.Sample)
	for _, sample := range m.samples {
		current, ok := latest[sample.PID]
		if !ok || !sample.RecordedAt.Before(current.RecordedAt) {
			latest[sample.PID] = sample
		}
	}

	result := make([]telemetry.Sample, 0, len(latest))
	for _, sample := range latest {
		result = append(result, sample)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PID < result[j].PID
	})
	return result, nil
}

func (m *memoryStore) AppendDTCs(codes []obd.DTC, cleared bool) error {
	if len(codes) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	detectedAt := telemetry.Timestamp(time.Now())
	for _, dtc := range codes {
		m.events = append(m.events, telemetry.DTCEvent{
			Code:        dtc.Code,
			Description: dtc.Description,
			DetectedAt:  detectedAt,
			Cleared:     cleared,
		})
	}
	return nil
}

func (m *memoryStore) DTCHistory(limit int) ([]telemetry.DTCEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	// Most recent first; later insertion wins detected_at ties, matching
	// the SQLite backend's id tie-break.
	result := make([]telemetry.DTCEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		result = append(result, m.events[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
