package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// MinPollInterval is the floor for the polling interval. Adapters need
// hundreds of milliseconds per command, so anything faster is meaningless.
const MinPollInterval = 100 * time.Millisecond

// DefaultPIDs is a baseline set of commonly-supported commands used when a
// vehicle file does not list its own.
var DefaultPIDs = []string{
	"SPEED",
	"RPM",
	"COOLANT_TEMP",
	"INTAKE_TEMP",
	"THROTTLE_POS",
	"FUEL_LEVEL",
	"MAF",
}

// Vehicle describes how to communicate with a specific vehicle.
// It is immutable for the lifetime of one engine instance.
type Vehicle struct {
	Name            string            `yaml:"name"`
	AdapterPort     string            `yaml:"adapterPort"`
	PollingInterval float64           `yaml:"pollingInterval"` // seconds
	PIDs            []string          `yaml:"pids"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
}

// LoadVehicle reads and validates a vehicle configuration from a YAML file
func LoadVehicle(path string) (*Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle file: %w", err)
	}

	var v Vehicle
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if v.Name == "" {
		return nil, fmt.Errorf("vehicle config %s has no name", path)
	}
	if v.AdapterPort == "" {
		return nil, fmt.Errorf("vehicle config %s has no adapter port", path)
	}
	if v.PollingInterval == 0 {
		v.PollingInterval = 1.0
	}
	if v.PollingInterval < 0 {
		return nil, fmt.Errorf("vehicle config %s has a negative polling interval", path)
	}
	if len(v.PIDs) == 0 {
		v.PIDs = append([]string(nil), DefaultPIDs...)
	}

	return &v, nil
}

// SortedPIDs returns the configured PIDs deduplicated and in lexicographic
// order, which fixes the sweep order for the poll cycle.
func (v *Vehicle) SortedPIDs() []string {
	seen := make(map[string]struct{}, len(v.PIDs))
	result := make([]string, 0, len(v.PIDs))
	for _, pid := range v.PIDs {
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		result = append(result, pid)
	}
	sort.Strings(result)
	return result
}

// EffectiveInterval returns the polling interval with the floor applied
func (v *Vehicle) EffectiveInterval() time.Duration {
	interval := time.Duration(v.PollingInterval * float64(time.Second))
	if interval < MinPollInterval {
		return MinPollInterval
	}
	return interval
}
