// Package storage persists telemetry samples and diagnostic events.
package storage

import (
	"errors"

	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

// ErrClosed is returned by any operation after Close
var ErrClosed = errors.New("storage is closed")

// DefaultHistoryLimit bounds DTC history queries when the caller passes
// a non-positive limit.
const DefaultHistoryLimit = 100

// Store is the append-mostly record store for samples and DTC events.
type Store interface {
	// Init prepares the backing store. Idempotent.
	Init() error

	// InsertSamples appends a batch of samples atomically
	InsertSamples(samples []telemetry.Sample) error

	// LatestSamples returns the most recent sample per distinct PID,
	// ordered by PID ascending
	LatestSamples() ([]telemetry.Sample, error)

	// AppendDTCs appends a snapshot of trouble codes, all stamped with the
	// same detection time
	AppendDTCs(codes []obd.DTC, cleared bool) error

	// DTCHistory returns up to limit events, most recent first
	DTCHistory(limit int) ([]telemetry.DTCEvent, error)

	// Close releases all resources. Safe to call when never initialized;
	// subsequent operations fail with ErrClosed.
	Close() error
}
