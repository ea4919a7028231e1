package datamodel

import "time"

// LedgerEventType names a committed mutation
type LedgerEventType string

const (
	EventStopCreated    LedgerEventType = "stop.created"
	EventStopUpdated    LedgerEventType = "stop.updated"
	EventStopClosed     LedgerEventType = "stop.closed"
	EventStopDeleted    LedgerEventType = "stop.deleted"
	EventStopPurged     LedgerEventType = "stop.purged"
	EventShiftStarted   LedgerEventType = "shift.started"
	EventShiftClosed    LedgerEventType = "shift.closed"
	EventShiftReopened  LedgerEventType = "shift.reopened"
	EventShiftCancelled LedgerEventType = "shift.cancelled"
)

// LedgerEvent is emitted after a mutation was committed
type LedgerEvent struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    any             `json:"payload,omitempty"`
	Type       LedgerEventType `json:"type"`
	LotID      string          `json:"lot_id,omitempty"`
	StopID     string          `json:"stop_id,omitempty"`
	ActorID    int             `json:"actor_id,omitempty"`
}
