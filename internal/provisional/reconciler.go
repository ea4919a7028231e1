package provisional

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// StopLedger is the system of record the staged stops are pushed into
type StopLedger interface {
	Get(ctx context.Context, id string) (datamodel.StopEvent, error)
	Create(ctx context.Context, stop datamodel.StopEvent) (datamodel.StopEvent, error)
	Update(ctx context.Context, id string, patch datamodel.StopPatch) (datamodel.StopEvent, error)
	SoftDelete(ctx context.Context, id string, actorID int) (datamodel.StopEvent, error)
}

// RecordFailure is a staged stop that could not be pushed. It stays pending for the next flush.
type RecordFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// FlushReport lists the outcome of one flush per staged stop
type FlushReport struct {
	Synced   []string        `json:"synced"`
	Failures []RecordFailure `json:"failures"`
}

// Reconciler periodically pushes staged stops into the ledger
type Reconciler struct {
	stops    *Stops
	ledger   StopLedger
	cron     *cron.Cron
	schedule string
	running  sync.Mutex
}

func NewReconciler(stops *Stops, ledger StopLedger, schedule string) *Reconciler {
	return &Reconciler{
		stops:    stops,
		ledger:   ledger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start runs a flush on every tick of the cron schedule
func (r *Reconciler) Start() error {
	if r.schedule == "" {
		zap.S().Infof("No reconcile schedule configured, provisional stops are only flushed on demand")
		return nil
	}
	_, err := r.cron.AddFunc(r.schedule, r.scheduledFlush)
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	zap.S().Infof("Flushing provisional stops on schedule %q", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running flush until ctx expires
func (r *Reconciler) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) scheduledFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), internal.OneMinute)
	defer cancel()
	report, err := r.Flush(ctx)
	if errors.Is(err, datamodel.ErrConflict) {
		zap.S().Debugf("Skipping scheduled flush: %s", err)
		return
	}
	if err != nil {
		zap.S().Warnf("Flushed %d provisional stops, %d failed: %s", len(report.Synced), len(report.Failures), err)
		return
	}
	if len(report.Synced) > 0 {
		zap.S().Infof("Flushed %d provisional stops", len(report.Synced))
	}
}

// Flush pushes every pending staged stop into the ledger.
// Failed records are reported and stay pending, the returned error joins their errors.
func (r *Reconciler) Flush(ctx context.Context) (FlushReport, error) {
	report := FlushReport{Synced: make([]string, 0), Failures: make([]RecordFailure, 0)}
	if !r.running.TryLock() {
		return report, datamodel.NewConflictError("a flush is already running")
	}
	defer r.running.Unlock()

	pending, err := r.stops.Pending(ctx)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("failed").Inc()
		return report, err
	}

	var errs []error
	for _, p := range pending {
		if err = r.push(ctx, p); err == nil {
			err = r.stops.MarkSynced(ctx, p.ID, p.Version())
		}
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{ID: p.ID, Error: err.Error()})
			errs = append(errs, fmt.Errorf("stop %s: %w", p.ID, err))
			continue
		}
		report.Synced = append(report.Synced, p.ID)
	}

	metrics.ReconciledRecords.Add(float64(len(report.Synced)))
	switch {
	case len(errs) == 0:
		metrics.ReconcileRuns.WithLabelValues("success").Inc()
	case len(report.Synced) == 0:
		metrics.ReconcileRuns.WithLabelValues("failed").Inc()
	default:
		metrics.ReconcileRuns.WithLabelValues("partial").Inc()
	}
	return report, errors.Join(errs...)
}

func (r *Reconciler) push(ctx context.Context, p ProvisionalStop) error {
	current, err := r.ledger.Get(ctx, p.ID)
	switch {
	case datamodel.IsNotFound(err):
		if p.IsDeleted() {
			// never reached the ledger, nothing to retract
			return nil
		}
		_, err = r.ledger.Create(ctx, p.StopEvent)
		return err
	case err != nil:
		return err
	}

	if p.UpdatedAt != nil && (p.SyncedAt == nil || p.UpdatedAt.After(*p.SyncedAt)) {
		if current, err = r.ledger.Update(ctx, p.ID, mutableFields(p.StopEvent, current)); err != nil {
			return err
		}
	}
	if p.IsDeleted() && !current.IsDeleted() {
		actor := p.OperatorID
		if p.DeletedBy != nil {
			actor = *p.DeletedBy
		}
		_, err = r.ledger.SoftDelete(ctx, p.ID, actor)
		return err
	}
	return nil
}

// mutableFields is the patch that brings the ledger stop current to the staged values.
// The supervisor is only sent when it changed, setting it stamps a new review time.
func mutableFields(stop datamodel.StopEvent, current datamodel.StopEvent) datamodel.StopPatch {
	reason := stop.ReasonID
	start := stop.StartTime
	note := stop.Note
	patch := datamodel.StopPatch{
		ReasonID:  &reason,
		LotID:     stop.LotID,
		StartTime: &start,
		EndTime:   stop.EndTime,
		Note:      &note,
		UpdatedBy: stop.UpdatedBy,
	}
	if stop.SupervisorID != nil && (current.SupervisorID == nil || *current.SupervisorID != *stop.SupervisorID) {
		patch.SupervisorID = stop.SupervisorID
	}
	return patch
}
