// Package obd defines the boundary to the vehicle adapter: the connection
// contract, the command registry and the response shape. The wire protocol
// itself lives behind the Connection implementation.
package obd

import "fmt"

// Command identifies a single query the adapter knows how to issue.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DTC is one diagnostic trouble code with an optional description.
type DTC struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Response is the adapter's answer to a single command. A null response
// (timeout, unsupported PID) carries neither value nor raw text.
type Response struct {
	Raw   string   // adapter-native textual representation
	Value *float64 // numeric magnitude, if the value carries one
	Unit  string
	Codes []DTC // populated only for the diagnostic read command
}

// IsNull reports whether the adapter returned no data
func (r Response) IsNull() bool {
	return r.Raw == "" && r.Value == nil && len(r.Codes) == 0
}

// Connection is a live, single-outstanding-call adapter session.
// Query blocks; callers must serialize access themselves.
type Connection interface {
	IsConnected() bool
	Query(cmd Command) (Response, error)
	Close() error
}

// Connector opens adapter sessions on a given port
type Connector interface {
	Connect(port string) (Connection, error)
}

// Float is a convenience for building numeric responses
func Float(v float64) *float64 {
	return &v
}

// ErrNotSupported is returned by a connection for commands it cannot issue.
type ErrNotSupported struct {
	Command string
}

func (e *ErrNotSupported) Error() string {
	return fmt.Sprintf("command %s not supported by adapter", e.Command)
}
