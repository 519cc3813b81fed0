// Package monitor is the consumer-facing session over one vehicle: the
// acquisition engine, its storage and its live stream, with every operation
// routed through the execution bridge's call-with-timeout surface.
package monitor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pv/obd-monitor-go/internal/bridge"
	"github.com/pv/obd-monitor-go/internal/broadcast"
	"github.com/pv/obd-monitor-go/internal/engine"
	"github.com/pv/obd-monitor-go/internal/logger"
	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/storage"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

// Status combines engine state with stream information.
type Status struct {
	engine.Status
	Subscribers int `json:"subscribers"`
}

type Monitor struct {
	engine  *engine.Engine
	store   storage.Store
	hub     *broadcast.Hub
	bridge  *bridge.Bridge
	timeout time.Duration
	logger  *slog.Logger
}

// New wires a monitor over an engine, its store and its hub. timeout bounds
// every bridged call.
func New(eng *engine.Engine, store storage.Store, hub *broadcast.Hub, br *bridge.Bridge, timeout time.Duration) *Monitor {
	return &Monitor{
		engine:  eng,
		store:   store,
		hub:     hub,
		bridge:  br,
		timeout: timeout,
		logger:  logger.Component("monitor"),
	}
}

// Start connects and begins polling
func (m *Monitor) Start() error {
	return m.bridge.Run(m.engine.Start, m.timeout)
}

// Stop halts polling and closes the adapter connection
func (m *Monitor) Stop() error {
	return m.bridge.Run(m.engine.Stop, m.timeout)
}

// Subscribe attaches a live sample stream. The handle's channel yields
// samples until the handle is closed.
func (m *Monitor) Subscribe() (*broadcast.Subscription, error) {
	return bridge.Do(m.bridge, m.timeout, func() (*broadcast.Subscription, error) {
		return m.hub.Subscribe(), nil
	})
}

// LatestSamples returns the most recent sample per PID
func (m *Monitor) LatestSamples() ([]telemetry.Sample, error) {
	return bridge.Do(m.bridge, m.timeout, m.store.LatestSamples)
}

// DTCHistory returns up to limit stored diagnostic events, newest first
func (m *Monitor) DTCHistory(limit int) ([]telemetry.DTCEvent, error) {
	return bridge.Do(m.bridge, m.timeout, func() ([]telemetry.DTCEvent, error) {
		return m.store.DTCHistory(limit)
	})
}

// ReadDTCs reads trouble codes from the vehicle, optionally persisting them
func (m *Monitor) ReadDTCs(persist bool) ([]obd.DTC, error) {
	return bridge.Do(m.bridge, m.timeout, func() ([]obd.DTC, error) {
		return m.engine.ReadDTCs(persist)
	})
}

// ClearDTCs clears the vehicle's trouble codes. Recording the cleared state
// is a separate RecordCleared call, once the caller trusts the clear.
func (m *Monitor) ClearDTCs() error {
	return m.bridge.Run(m.engine.ClearDTCs, m.timeout)
}

// RecordCleared appends a cleared-state snapshot of the given codes
func (m *Monitor) RecordCleared(codes []obd.DTC) error {
	return m.bridge.Run(func() error {
		return m.store.AppendDTCs(codes, true)
	}, m.timeout)
}

// Status reports current state without going through the bridge, so it
// stays responsive while a long operation is in flight.
func (m *Monitor) Status() Status {
	return Status{
		Status:      m.engine.Status(),
		Subscribers: m.hub.Count(),
	}
}

// Shutdown stops the engine, detaches subscribers, closes storage and joins
// the bridge worker. Every failure is surfaced; shutdown keeps going.
func (m *Monitor) Shutdown(timeout time.Duration) error {
	var errs []error

	if err := m.bridge.Run(m.engine.Stop, timeout); err != nil {
		errs = append(errs, err)
	}

	m.hub.Shutdown()

	if err := m.bridge.Run(m.store.Close, timeout); err != nil {
		errs = append(errs, err)
	}

	if err := m.bridge.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		m.logger.Error("shutdown finished with errors", "errors", len(errs))
	}
	return errors.Join(errs...)
}
