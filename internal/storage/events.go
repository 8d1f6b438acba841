package storage

import "time"

// EventWriter is the interface for writing policy decision events.
// Write() must NEVER block the pump's stream loops.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent records one evaluated tools/call request. Relayed
// traffic (responses, notifications, non-tool methods) is never audited.
type DecisionEvent struct {
	RequestID string
	SessionID string
	Timestamp time.Time
	ToolName  string
	Owner     string
	Repo      string
	Decision  string // policy.Decision.String()
	Reason    string // rejection message, empty on forward
	Mode      string // "passthrough" or "restricted"
	LatencyMs float32
}
