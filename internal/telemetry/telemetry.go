// Package telemetry defines the records the service acquires and persists.
package telemetry

import (
	"time"

	"github.com/pv/obd-monitor-go/internal/obd"
)

// Status describes the outcome of one parameter query.
type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
	StatusError  Status = "error"
)

// Sample is one measurement of one parameter at one instant. Samples are
// immutable once created and only ever appended to storage.
type Sample struct {
	PID         string    `json:"pid"`
	Description string    `json:"description,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	Status      Status    `json:"status"`
	Raw         string    `json:"raw,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Value       *float64  `json:"value,omitempty"`
	Display     string    `json:"display,omitempty"`
}

// DTCEvent is one detected or cleared trouble code, as persisted.
type DTCEvent struct {
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
	Cleared     bool      `json:"cleared"`
}

// Timestamp normalizes a time to the stored resolution: UTC, whole seconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// SampleFromResponse serializes an adapter response into a Sample.
// A null response becomes status=no_data with no value; a present value
// keeps its raw text and numeric magnitude when it carries one.
func SampleFromResponse(cmd obd.Command, resp obd.Response, at time.Time) Sample {
	sample := Sample{
		PID:         cmd.Name,
		Description: cmd.Description,
		RecordedAt:  Timestamp(at),
		Status:      StatusOK,
	}

	if resp.IsNull() {
		sample.Status = StatusNoData
		return sample
	}

	sample.Raw = resp.Raw
	sample.Unit = resp.Unit
	sample.Display = resp.Raw
	if resp.Value != nil {
		v := *resp.Value
		sample.Value = &v
	}

	return sample
}
