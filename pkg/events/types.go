// Package events defines the runtime state events and the publishers that
// carry them off-process.
package events

// Reasons a runtime publishes its state.
const (
	ReasonBroadcast    = "broadcast"
	ReasonRegistered   = "registered"
	ReasonReleased     = "released"
	ReasonConnected    = "connected"
	ReasonDisconnected = "disconnected"
)

// StateChangedEvent is emitted when a runtime's registry, routes or
// connections change.
type StateChangedEvent struct {
	RuntimeID string   `json:"runtimeId"`
	Reason    string   `json:"reason"`
	Services  []string `json:"services,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	State     any      `json:"state,omitempty"`
	Timestamp string   `json:"timestamp"`
}
