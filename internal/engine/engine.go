// Package engine owns the adapter connection and runs the acquisition loop:
// sweep the configured parameters, persist the batch, broadcast it, sleep.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pv/obd-monitor-go/internal/broadcast"
	"github.com/pv/obd-monitor-go/internal/config"
	"github.com/pv/obd-monitor-go/internal/logger"
	"github.com/pv/obd-monitor-go/internal/obd"
	"github.com/pv/obd-monitor-go/internal/storage"
	"github.com/pv/obd-monitor-go/internal/telemetry"
)

// DefaultStopTimeout bounds the wait for the poll loop to exit. Generous:
// an in-flight adapter command is allowed to finish first.
const DefaultStopTimeout = 10 * time.Second

type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePolling
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the engine for callers and the API.
type Status struct {
	Vehicle     string    `json:"vehicle"`
	State       string    `json:"state"`
	Connected   bool      `json:"connected"`
	LastSweep   time.Time `json:"lastSweep,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	SampleCount int64     `json:"sampleCount"`
}

// Engine polls the vehicle, persists sample batches and fans them out.
// All command issuance, from the poll loop or on-demand diagnostics, is
// serialized through one access point: the connection is half-duplex.
type Engine struct {
	vehicle   *config.Vehicle
	connector obd.Connector
	store     storage.Store
	hub       *broadcast.Hub
	pids      []string
	logger    *slog.Logger

	// StopTimeout bounds Stop's wait for the poll loop. Set before Start.
	StopTimeout time.Duration

	mu    sync.Mutex // state transitions
	state State
	stopc chan struct{}
	done  chan struct{}

	cmdMu sync.Mutex // the single access point to the connection
	conn  obd.Connection

	// Unresolved PIDs, skipped for the lifetime of this engine instance.
	// Touched only by the poll loop goroutine.
	missing map[string]struct{}

	statusMu    sync.RWMutex
	connected   bool
	lastSweep   time.Time
	lastError   string
	sampleCount int64
}

func New(vehicle *config.Vehicle, connector obd.Connector, store storage.Store, hub *broadcast.Hub) *Engine {
	return &Engine{
		vehicle:     vehicle,
		connector:   connector,
		store:       store,
		hub:         hub,
		pids:        vehicle.SortedPIDs(),
		logger:      logger.Component("engine"),
		StopTimeout: DefaultStopTimeout,
		missing:     make(map[string]struct{}),
	}
}

// Start connects to the adapter and launches the poll loop.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return nil
	}
	e.state = StateConnecting

	if err := e.store.Init(); err != nil {
		e.state = StateIdle
		return fmt.Errorf("init storage: %w", err)
	}

	e.logger.Info("connecting to adapter", "vehicle", e.vehicle.Name, "port", e.vehicle.AdapterPort)

	conn, err := e.connector.Connect(e.vehicle.AdapterPort)
	if err != nil {
		e.state = StateIdle
		return &ConnectionError{Port: e.vehicle.AdapterPort, Err: err}
	}
	if !conn.IsConnected() {
		conn.Close()
		e.state = StateIdle
		return &ConnectionError{Port: e.vehicle.AdapterPort, Err: errors.New("adapter reports not connected")}
	}

	e.cmdMu.Lock()
	e.conn = conn
	e.cmdMu.Unlock()
	e.setConnected(true)

	e.stopc = make(chan struct{})
	e.done = make(chan struct{})
	e.state = StatePolling

	go e.pollLoop(e.stopc, e.done)

	e.logger.Info("polling loop started",
		"vehicle", e.vehicle.Name,
		"interval", e.vehicle.EffectiveInterval(),
		"pids", len(e.pids))
	return nil
}

// Stop signals the poll loop, waits for it within StopTimeout, then closes
// the adapter connection. Stop on an idle engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return nil
	}
	if e.state != StateStopping {
		// A previous Stop may already have signalled and timed out.
		e.state = StateStopping
		close(e.stopc)
	}

	select {
	case <-e.done:
	case <-time.After(e.StopTimeout):
		// Leaked goroutine; the engine must not be reused.
		return &ShutdownError{Timeout: e.StopTimeout}
	}

	e.cmdMu.Lock()
	conn := e.conn
	e.conn = nil
	e.cmdMu.Unlock()
	e.setConnected(false)

	e.state = StateIdle

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close adapter connection: %w", err)
		}
	}

	e.logger.Info("polling loop stopped", "vehicle", e.vehicle.Name)
	return nil
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns a snapshot of engine state for status reporting. It never
// touches the command access point, so it stays responsive while a slow
// adapter command is in flight.
func (e *Engine) Status() Status {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	return Status{
		Vehicle:     e.vehicle.Name,
		State:       state.String(),
		Connected:   e.connected,
		LastSweep:   e.lastSweep,
		LastError:   e.lastError,
		SampleCount: e.sampleCount,
	}
}

// ReadDTCs queries the vehicle for diagnostic trouble codes. An empty or
// null response is an empty list, not an error. With persist, the returned
// codes are appended to storage as one uncleared batch before returning.
func (e *Engine) ReadDTCs(persist bool) ([]obd.DTC, error) {
	resp, err := e.query(obd.GetDTC)
	if err != nil {
		return nil, err
	}

	codes := resp.Codes
	e.logger.Info("read diagnostic codes", "count", len(codes))

	if persist && len(codes) > 0 {
		if err := e.store.AppendDTCs(codes, false); err != nil {
			return codes, fmt.Errorf("persist diagnostic codes: %w", err)
		}
	}
	return codes, nil
}

// ClearDTCs issues the clear command. It records nothing by itself:
// persisting the cleared state is the caller's decision, via storage append,
// once the clear is confirmed.
func (e *Engine) ClearDTCs() error {
	if _, err := e.query(obd.ClearDTC); err != nil {
		return err
	}
	e.logger.Info("requested diagnostic code clear", "vehicle", e.vehicle.Name)
	return nil
}

// query issues one command through the serialized access point
func (e *Engine) query(cmd obd.Command) (obd.Response, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if e.conn == nil {
		return obd.Response{}, ErrNotConnected
	}

	resp, err := e.conn.Query(cmd)
	if err != nil {
		return obd.Response{}, &QueryError{Command: cmd.Name, Err: err}
	}
	return resp, nil
}

func (e *Engine) pollLoop(stopc <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := e.vehicle.EffectiveInterval()

	for {
		samples := e.sweep(stopc)

		if len(samples) > 0 {
			// Persist before broadcast: a consumer reacting to a broadcast
			// sample can rely on finding it in storage.
			if err := e.store.InsertSamples(samples); err != nil {
				e.logger.Error("persist batch failed", "samples", len(samples), "error", err)
				e.setSweepStatus(0, err)
			} else {
				e.hub.Publish(samples)
				e.setSweepStatus(len(samples), nil)
			}
		} else {
			e.setSweepStatus(0, nil)
		}

		select {
		case <-stopc:
			return
		case <-time.After(interval):
		}
	}
}

// sweep queries every configured parameter once, in fixed lexicographic
// order. A single parameter's failure never aborts the sweep.
func (e *Engine) sweep(stopc <-chan struct{}) []telemetry.Sample {
	var samples []telemetry.Sample

	for _, name := range e.pids {
		select {
		case <-stopc:
			return samples
		default:
		}

		if _, skip := e.missing[name]; skip {
			continue
		}

		cmd, ok := obd.Lookup(name)
		if !ok {
			e.missing[name] = struct{}{}
			e.logger.Warn("unsupported PID, skipping permanently", "pid", name)
			continue
		}

		resp, err := e.query(cmd)
		if err != nil {
			e.logger.Warn("query failed", "pid", name, "error", err)
			continue
		}

		samples = append(samples, telemetry.SampleFromResponse(cmd, resp, time.Now()))
	}

	return samples
}

func (e *Engine) setConnected(connected bool) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.connected = connected
}

func (e *Engine) setSweepStatus(count int, err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	e.lastSweep = time.Now()
	e.sampleCount += int64(count)
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
}
