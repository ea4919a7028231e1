package supervision

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

// Shift state machine events
const (
	EventStart  = "start"
	EventClose  = "close"
	EventReopen = "reopen"
	EventCancel = "cancel"
)

// newShiftFSM builds the shift state machine positioned at current:
//
//	PLANNED -> OPEN -> CLOSED, CLOSED -> OPEN (reopen), PLANNED|OPEN -> CANCELLED
//
// CANCELLED is terminal.
func newShiftFSM(current datamodel.ShiftStatus) *fsm.FSM {
	planned := string(datamodel.ShiftPlanned)
	open := string(datamodel.ShiftOpen)
	closed := string(datamodel.ShiftClosed)
	cancelled := string(datamodel.ShiftCancelled)

	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: EventStart, Src: []string{planned}, Dst: open},
			{Name: EventClose, Src: []string{open}, Dst: closed},
			{Name: EventReopen, Src: []string{closed}, Dst: open},
			{Name: EventCancel, Src: []string{planned, open}, Dst: cancelled},
		},
		fsm.Callbacks{},
	)
}

// CanTransition reports whether event is allowed from status
func CanTransition(status datamodel.ShiftStatus, event string) bool {
	return newShiftFSM(status).Can(event)
}

// NextStatus returns the status reached by applying event to status, or an ErrConflict error
func NextStatus(ctx context.Context, status datamodel.ShiftStatus, event string) (datamodel.ShiftStatus, error) {
	f := newShiftFSM(status)
	if err := f.Event(ctx, event); err != nil {
		var unknown fsm.UnknownEventError
		if errors.As(err, &unknown) {
			return status, datamodel.NewValidationError("unknown shift event %q", event)
		}
		return status, datamodel.NewConflictError("cannot %s a shift in status %s", event, status)
	}
	return datamodel.ShiftStatus(f.Current()), nil
}
