package supervision

import (
	"context"
	"strings"
	"time"

	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// Step is one backend call of a multi step transition
type Step string

const (
	StepMarkReviewed       Step = "mark_reviewed"
	StepCalculateSnapshot  Step = "calculate_snapshot"
	StepInvalidateSnapshot Step = "invalidate_snapshot"
	StepRevertLot          Step = "revert_lot"
)

// Ordering contract of the two step transitions. Steps run in this order and nothing is compensated:
// a failure leaves the steps before it committed.
//
// Close: a failure after StepMarkReviewed leaves the lot COMPLETED without snapshot,
// RecalculateSnapshot finishes it.
// Reopen: the snapshot is invalidated before the lot reverts, so a failure in between leaves a
// COMPLETED lot without ACTIVE snapshot, never an IN_PROGRESS lot with one. Calling ReopenShift again finishes it.
var (
	CloseSteps  = []Step{StepMarkReviewed, StepCalculateSnapshot}
	ReopenSteps = []Step{StepInvalidateSnapshot, StepRevertLot}
)

// StepError reports a failed transition together with the steps already committed.
// Error() is the backend message unchanged.
type StepError struct {
	Err       error
	Operation string
	LotID     string
	Failed    Step
	Completed []Step
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Partial reports whether some steps were committed before the failure
func (e *StepError) Partial() bool {
	return len(e.Completed) > 0
}

// CloseResult is returned by a successful close
type CloseResult struct {
	ReviewedAt time.Time `json:"reviewed_at"`
	LotID      string    `json:"lot_id"`
	SnapshotID string    `json:"snapshot_id"`
}

// ReopenResult is returned by a successful reopen
type ReopenResult struct {
	LotID                string `json:"lot_id"`
	InvalidatedSnapshots int64  `json:"invalidated_snapshots"`
}

// CloseShift marks the lot COMPLETED with the reviewer stamp, then has the OEE snapshot computed.
// See CloseSteps for what a failure leaves behind.
func (s *Service) CloseShift(ctx context.Context, lotID string, supervisorID int, notes *string) (CloseResult, error) {
	if lotID == "" {
		return CloseResult{}, datamodel.NewValidationError("lot id is required")
	}
	if supervisorID <= 0 {
		return CloseResult{}, datamodel.NewValidationError("supervisor id must be positive")
	}
	if notes != nil && strings.TrimSpace(*notes) == "" {
		notes = nil
	}

	unlock, err := s.lock(lotID)
	if err != nil {
		return CloseResult{}, err
	}
	defer unlock()

	if _, err = s.checkTransition(ctx, lotID, EventClose); err != nil {
		return CloseResult{}, err
	}

	cmd := datamodel.ReviewCommand{
		LotID:        lotID,
		SupervisorID: supervisorID,
		Notes:        notes,
		ReviewedAt:   s.now(),
	}

	var snapshotID string
	if s.atomic != nil {
		snapshotID, err = s.atomic.CloseLot(ctx, cmd)
		if err != nil {
			return CloseResult{}, s.stepFailed(EventClose, lotID, nil, StepMarkReviewed, err)
		}
	} else {
		if err = s.backend.MarkLotReviewed(ctx, cmd); err != nil {
			return CloseResult{}, s.stepFailed(EventClose, lotID, nil, StepMarkReviewed, err)
		}
		snapshotID, err = s.calculator.CalculateSnapshot(ctx, lotID)
		if err != nil {
			return CloseResult{}, s.stepFailed(EventClose, lotID, CloseSteps[:1], StepCalculateSnapshot, err)
		}
	}

	result := CloseResult{LotID: lotID, SnapshotID: snapshotID, ReviewedAt: cmd.ReviewedAt}
	zap.S().Infof("Shift of lot %s closed by supervisor %d, snapshot %s", lotID, supervisorID, snapshotID)
	metrics.ShiftTransitions.WithLabelValues(EventClose, "ok").Inc()
	s.committed(ctx, datamodel.EventShiftClosed, lotID, supervisorID, result)
	return result, nil
}

// RecalculateSnapshot finishes a close whose snapshot step failed.
// A lot that already has an ACTIVE snapshot gets that snapshot back without a new calculation.
func (s *Service) RecalculateSnapshot(ctx context.Context, lotID string) (CloseResult, error) {
	if lotID == "" {
		return CloseResult{}, datamodel.NewValidationError("lot id is required")
	}
	unlock, err := s.lock(lotID)
	if err != nil {
		return CloseResult{}, err
	}
	defer unlock()

	lot, err := s.GetShift(ctx, lotID)
	if err != nil {
		return CloseResult{}, err
	}
	if status := lot.EffectiveShiftStatus(); status != datamodel.ShiftClosed {
		return CloseResult{}, datamodel.NewConflictError("snapshots are only calculated for closed shifts, lot %s is %s", lotID, status)
	}
	result := CloseResult{LotID: lotID}
	if lot.ReviewedAt != nil {
		result.ReviewedAt = *lot.ReviewedAt
	}

	active, err := s.backend.GetActiveSnapshot(ctx, lotID)
	if err == nil {
		result.SnapshotID = active.ID
		return result, nil
	}
	if !datamodel.IsNotFound(err) {
		return CloseResult{}, backendError("get active snapshot", err)
	}

	result.SnapshotID, err = s.calculator.CalculateSnapshot(ctx, lotID)
	if err != nil {
		return CloseResult{}, s.stepFailed(EventClose, lotID, CloseSteps[:1], StepCalculateSnapshot, err)
	}
	zap.S().Infof("Snapshot %s recalculated for lot %s", result.SnapshotID, lotID)
	s.cache.Invalidate()
	return result, nil
}

// ReopenShift invalidates the ACTIVE snapshot of the lot, then reverts the lot to IN_PROGRESS.
// A lot without ACTIVE snapshot is reverted all the same. Reopening an OPEN shift repeats both steps.
func (s *Service) ReopenShift(ctx context.Context, lotID string, supervisorID int, reason string) (ReopenResult, error) {
	if lotID == "" {
		return ReopenResult{}, datamodel.NewValidationError("lot id is required")
	}
	if supervisorID <= 0 {
		return ReopenResult{}, datamodel.NewValidationError("supervisor id must be positive")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ReopenResult{}, datamodel.NewValidationError("a reason is required to reopen a shift")
	}

	unlock, err := s.lock(lotID)
	if err != nil {
		return ReopenResult{}, err
	}
	defer unlock()

	lot, err := s.GetShift(ctx, lotID)
	if err != nil {
		return ReopenResult{}, err
	}
	if lot.EffectiveShiftStatus() != datamodel.ShiftOpen {
		if _, err = NextStatus(ctx, lot.EffectiveShiftStatus(), EventReopen); err != nil {
			metrics.ShiftTransitions.WithLabelValues(EventReopen, "rejected").Inc()
			return ReopenResult{}, err
		}
	}

	cmd := datamodel.ReopenCommand{
		LotID:        lotID,
		SupervisorID: supervisorID,
		Reason:       reason,
		At:           s.now(),
	}

	var invalidated int64
	if s.atomic != nil {
		invalidated, err = s.atomic.ReopenLot(ctx, cmd)
		if err != nil {
			return ReopenResult{}, s.stepFailed(EventReopen, lotID, nil, StepInvalidateSnapshot, err)
		}
	} else {
		invalidated, err = s.backend.InvalidateActiveSnapshots(ctx, cmd)
		if err != nil {
			return ReopenResult{}, s.stepFailed(EventReopen, lotID, nil, StepInvalidateSnapshot, err)
		}
		if err = s.backend.RevertLotToInProgress(ctx, cmd); err != nil {
			return ReopenResult{}, s.stepFailed(EventReopen, lotID, ReopenSteps[:1], StepRevertLot, err)
		}
	}

	if invalidated == 0 {
		zap.S().Debugf("Lot %s had no active snapshot to invalidate", lotID)
	}
	result := ReopenResult{LotID: lotID, InvalidatedSnapshots: invalidated}
	zap.S().Infof("Shift of lot %s reopened by supervisor %d: %s", lotID, supervisorID, reason)
	metrics.ShiftTransitions.WithLabelValues(EventReopen, "ok").Inc()
	s.committed(ctx, datamodel.EventShiftReopened, lotID, supervisorID, result)
	return result, nil
}

// StartShift opens a planned shift
func (s *Service) StartShift(ctx context.Context, lotID string, actorID int) (datamodel.LotSummary, error) {
	return s.simpleTransition(ctx, lotID, actorID, EventStart, datamodel.EventShiftStarted)
}

// CancelShift cancels a planned or open shift. Cancelled shifts never change again.
func (s *Service) CancelShift(ctx context.Context, lotID string, actorID int) (datamodel.LotSummary, error) {
	return s.simpleTransition(ctx, lotID, actorID, EventCancel, datamodel.EventShiftCancelled)
}

func (s *Service) simpleTransition(ctx context.Context, lotID string, actorID int, event string, eventType datamodel.LedgerEventType) (datamodel.LotSummary, error) {
	if lotID == "" {
		return datamodel.LotSummary{}, datamodel.NewValidationError("lot id is required")
	}
	if actorID <= 0 {
		return datamodel.LotSummary{}, datamodel.NewValidationError("actor id must be positive")
	}
	unlock, err := s.lock(lotID)
	if err != nil {
		return datamodel.LotSummary{}, err
	}
	defer unlock()

	lot, err := s.GetShift(ctx, lotID)
	if err != nil {
		return datamodel.LotSummary{}, err
	}
	next, err := NextStatus(ctx, lot.EffectiveShiftStatus(), event)
	if err != nil {
		metrics.ShiftTransitions.WithLabelValues(event, "rejected").Inc()
		return datamodel.LotSummary{}, err
	}

	cmd := datamodel.TransitionCommand{LotID: lotID, To: next, ActorID: actorID, At: s.now()}
	if err = s.backend.TransitionLot(ctx, cmd); err != nil {
		metrics.ShiftTransitions.WithLabelValues(event, "failed").Inc()
		return datamodel.LotSummary{}, backendError(event+" shift", err)
	}
	lot.ShiftStatus = next
	lot.LotStatus = next.LotStatus()

	zap.S().Infof("Shift of lot %s is now %s (actor %d)", lotID, next, actorID)
	metrics.ShiftTransitions.WithLabelValues(event, "ok").Inc()
	s.committed(ctx, eventType, lotID, actorID, lot)
	return lot, nil
}

func (s *Service) checkTransition(ctx context.Context, lotID string, event string) (datamodel.LotSummary, error) {
	lot, err := s.GetShift(ctx, lotID)
	if err != nil {
		return datamodel.LotSummary{}, err
	}
	if _, err = NextStatus(ctx, lot.EffectiveShiftStatus(), event); err != nil {
		metrics.ShiftTransitions.WithLabelValues(event, "rejected").Inc()
		return datamodel.LotSummary{}, err
	}
	return lot, nil
}

func (s *Service) stepFailed(operation string, lotID string, completed []Step, failed Step, err error) error {
	metrics.ShiftTransitions.WithLabelValues(operation, "failed").Inc()
	if len(completed) > 0 {
		// committed steps changed what listings show
		s.cache.Invalidate()
		zap.S().Warnf("%s of lot %s stopped at %s after %v: %s", operation, lotID, failed, completed, err)
	}
	return &StepError{
		Operation: operation,
		LotID:     lotID,
		Completed: append([]Step(nil), completed...),
		Failed:    failed,
		Err:       backendError(string(failed), err),
	}
}
