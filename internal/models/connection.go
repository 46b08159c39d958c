package models

import "fmt"

// ConnectionState is the lifecycle state of the broker connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

var stateNames = map[ConnectionState]string{
	StateDisconnected: "Disconnected",
	StateConnecting:   "Connecting",
	StateConnected:    "Connected",
	StateReconnecting: "Reconnecting",
	StateFailed:       "Failed",
}

func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

// MarshalText encodes the state by name
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionStatus is a point-in-time view of the connection for readers
type ConnectionStatus struct {
	State    ConnectionState `json:"state"`
	Message  string          `json:"message"`
	Attempts int             `json:"attempts"`
}
