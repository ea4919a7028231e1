package datamodel

// LotStatus is the lifecycle status of a production lot
type LotStatus string

const (
	LotPlanned    LotStatus = "PLANNED"
	LotInProgress LotStatus = "IN_PROGRESS"
	LotCompleted  LotStatus = "COMPLETED"
	LotCancelled  LotStatus = "CANCELLED"
)

// ShiftStatus is the status of a shift instance. It drives the close/reopen state machine.
type ShiftStatus string

const (
	ShiftPlanned   ShiftStatus = "PLANNED"
	ShiftOpen      ShiftStatus = "OPEN"
	ShiftClosed    ShiftStatus = "CLOSED"
	ShiftCancelled ShiftStatus = "CANCELLED"
)

// SnapshotStatus is the status of an OEE snapshot
type SnapshotStatus string

const (
	SnapshotActive      SnapshotStatus = "ACTIVE"
	SnapshotInvalidated SnapshotStatus = "INVALIDATED"
)

// ShiftStatuses lists every shift status in state machine order
func ShiftStatuses() []ShiftStatus {
	return []ShiftStatus{ShiftPlanned, ShiftOpen, ShiftClosed, ShiftCancelled}
}

// ParseShiftStatus validates a shift status string
func ParseShiftStatus(s string) (ShiftStatus, error) {
	for _, status := range ShiftStatuses() {
		if string(status) == s {
			return status, nil
		}
	}
	return "", NewValidationError("unknown shift status %q", s)
}

// LotStatus returns the lot status written alongside the shift status
func (s ShiftStatus) LotStatus() LotStatus {
	switch s {
	case ShiftOpen:
		return LotInProgress
	case ShiftClosed:
		return LotCompleted
	case ShiftCancelled:
		return LotCancelled
	default:
		return LotPlanned
	}
}

// ShiftStatus derives the shift status of rows that only carry a lot status
func (l LotStatus) ShiftStatus() ShiftStatus {
	switch l {
	case LotInProgress:
		return ShiftOpen
	case LotCompleted:
		return ShiftClosed
	case LotCancelled:
		return ShiftCancelled
	default:
		return ShiftPlanned
	}
}
