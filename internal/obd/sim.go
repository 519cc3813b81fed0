package obd

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// simProfile describes the value range and unit a simulated PID produces.
type simProfile struct {
	base, span float64
	unit       string
}

var simProfiles = map[string]simProfile{
	"RPM":                    {base: 800, span: 2400, unit: "revolutions_per_minute"},
	"SPEED":                  {base: 0, span: 90, unit: "kph"},
	"COOLANT_TEMP":           {base: 82, span: 10, unit: "degC"},
	"INTAKE_TEMP":            {base: 25, span: 15, unit: "degC"},
	"THROTTLE_POS":           {base: 12, span: 40, unit: "percent"},
	"FUEL_LEVEL":             {base: 55, span: 5, unit: "percent"},
	"MAF":                    {base: 6, span: 30, unit: "grams_per_second"},
	"ENGINE_LOAD":            {base: 20, span: 45, unit: "percent"},
	"INTAKE_PRESSURE":        {base: 95, span: 40, unit: "kilopascal"},
	"RUN_TIME":               {base: 0, span: 0, unit: "second"},
	"CONTROL_MODULE_VOLTAGE": {base: 13.8, span: 0.6, unit: "volt"},
	"OIL_TEMP":               {base: 90, span: 12, unit: "degC"},
}

// SimConnector produces simulated adapter sessions so the service can run
// without hardware attached.
type SimConnector struct {
	// Latency added to every command, mimicking a real half-duplex link.
	Latency time.Duration
}

func NewSimConnector() *SimConnector {
	return &SimConnector{Latency: 50 * time.Millisecond}
}

func (c *SimConnector) Connect(port string) (Connection, error) {
	if port == "" {
		return nil, fmt.Errorf("simulator: empty port")
	}
	return &simConnection{
		latency: c.Latency,
		started: time.Now(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		open:    true,
	}, nil
}

type simConnection struct {
	latency time.Duration
	started time.Time

	mu   sync.Mutex
	rng  *rand.Rand
	open bool
}

func (c *simConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *simConnection) Query(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return Response{}, fmt.Errorf("simulator: connection closed")
	}

	time.Sleep(c.latency)

	switch cmd.Name {
	case GetDTC.Name:
		// The simulated vehicle is healthy.
		return Response{}, nil
	case ClearDTC.Name:
		return Response{Raw: "OK"}, nil
	case "RUN_TIME":
		v := time.Since(c.started).Seconds()
		return c.numeric(v, "second"), nil
	}

	profile, ok := simProfiles[cmd.Name]
	if !ok {
		return Response{}, &ErrNotSupported{Command: cmd.Name}
	}

	// Drift around the base on a slow sine so charts look alive.
	phase := time.Since(c.started).Seconds() / 30 * 2 * math.Pi
	v := profile.base + profile.span*(0.5+0.5*math.Sin(phase)) + c.rng.Float64()*profile.span*0.02
	return c.numeric(v, profile.unit), nil
}

func (c *simConnection) numeric(v float64, unit string) Response {
	v = math.Round(v*100) / 100
	return Response{
		Raw:   fmt.Sprintf("%g %s", v, unit),
		Value: Float(v),
		Unit:  unit,
	}
}

func (c *simConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}
