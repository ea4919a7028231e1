// Package downtime keeps the stop events of a site and their duration arithmetic.
//
// The ledger does not filter soft deleted stops out of list results, and by default it does not
// prevent two open stops on the same line. Callers filter with datamodel.ActiveStops, and
// WithSingleOpenStopPerLine turns the overlap check on.
package downtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// StopRepository persists stop events.
// GetStop and DeleteStop return an error wrapping datamodel.ErrNotFound for unknown ids.
type StopRepository interface {
	InsertStop(ctx context.Context, stop datamodel.StopEvent) error
	GetStop(ctx context.Context, id string) (datamodel.StopEvent, error)
	UpdateStop(ctx context.Context, stop datamodel.StopEvent) error
	DeleteStop(ctx context.Context, id string) error
	FindStops(ctx context.Context, filter datamodel.StopFilter) ([]datamodel.StopEvent, error)
}

// EventNotifier receives committed mutations
type EventNotifier interface {
	Notify(ctx context.Context, event datamodel.LedgerEvent)
}

type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithNotifier publishes every committed mutation to n
func WithNotifier(n EventNotifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// WithSingleOpenStopPerLine rejects creating an open stop on a line that already has one
func WithSingleOpenStopPerLine(enforce bool) Option {
	return func(l *Ledger) { l.singleOpenStop = enforce }
}

// WithChangeHook calls fn after every committed mutation
func WithChangeHook(fn func()) Option {
	return func(l *Ledger) { l.onChange = fn }
}

// WithIDGenerator replaces the uuid generator used for new stops
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// Ledger is the Downtime Ledger
type Ledger struct {
	repo           StopRepository
	notifier       EventNotifier
	now            func() time.Time
	onChange       func()
	newID          func() string
	singleOpenStop bool
}

func NewLedger(repo StopRepository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListOpenStops returns the stops of lotID without end time
func (l *Ledger) ListOpenStops(ctx context.Context, lotID string) ([]datamodel.StopEvent, error) {
	return l.listByLot(ctx, lotID, true)
}

// ListClosedStops returns the stops of lotID with an end time
func (l *Ledger) ListClosedStops(ctx context.Context, lotID string) ([]datamodel.StopEvent, error) {
	return l.listByLot(ctx, lotID, false)
}

func (l *Ledger) listByLot(ctx context.Context, lotID string, open bool) ([]datamodel.StopEvent, error) {
	if lotID == "" {
		return nil, datamodel.NewValidationError("lot id is required")
	}
	return l.find(ctx, "list stops by lot", datamodel.StopFilter{LotID: &lotID, Open: &open})
}

// ListByLine returns every stop recorded on lineID
func (l *Ledger) ListByLine(ctx context.Context, lineID int) ([]datamodel.StopEvent, error) {
	return l.find(ctx, "list stops by line", datamodel.StopFilter{LineID: &lineID})
}

// ListByShift returns every stop recorded against the shift instance shiftID
func (l *Ledger) ListByShift(ctx context.Context, shiftID int) ([]datamodel.StopEvent, error) {
	return l.find(ctx, "list stops by shift", datamodel.StopFilter{ShiftID: &shiftID})
}

func (l *Ledger) find(ctx context.Context, op string, filter datamodel.StopFilter) ([]datamodel.StopEvent, error) {
	stops, err := l.repo.FindStops(ctx, filter)
	if err != nil {
		return nil, l.backendError(op, err)
	}
	return stops, nil
}

// Get returns a single stop
func (l *Ledger) Get(ctx context.Context, id string) (datamodel.StopEvent, error) {
	stop, err := l.repo.GetStop(ctx, id)
	if err != nil {
		return datamodel.StopEvent{}, l.backendError("get stop", err)
	}
	return stop, nil
}

// Create stores stop. A missing id is generated, the duration is always derived from start and end.
func (l *Ledger) Create(ctx context.Context, stop datamodel.StopEvent) (datamodel.StopEvent, error) {
	if err := stop.Validate(); err != nil {
		return datamodel.StopEvent{}, err
	}
	if l.singleOpenStop && stop.IsOpen() {
		if err := l.ensureNoOpenStop(ctx, stop.LineID); err != nil {
			return datamodel.StopEvent{}, err
		}
	}

	if stop.ID == "" {
		stop.ID = l.newID()
	}
	if stop.CreatedAt.IsZero() {
		stop.CreatedAt = l.now()
	}
	if stop.CreatedBy == 0 {
		stop.CreatedBy = stop.OperatorID
	}
	if err := stop.RecomputeDuration(); err != nil {
		return datamodel.StopEvent{}, err
	}

	if err := l.repo.InsertStop(ctx, stop); err != nil {
		return datamodel.StopEvent{}, l.backendError("create stop", err)
	}
	zap.S().Debugf("Created stop %s on line %d (reason %d)", stop.ID, stop.LineID, stop.ReasonID)
	l.committed(ctx, "create", datamodel.EventStopCreated, stop, stop.CreatedBy)
	if stop.DurationMinutes != nil {
		metrics.StopDurations.Observe(*stop.DurationMinutes)
	}
	return stop, nil
}

func (l *Ledger) ensureNoOpenStop(ctx context.Context, lineID int) error {
	open := true
	stops, err := l.find(ctx, "list open stops by line", datamodel.StopFilter{LineID: &lineID, Open: &open})
	if err != nil {
		return err
	}
	if active := datamodel.ActiveStops(stops); len(active) > 0 {
		return datamodel.NewConflictError("line %d already has open stop %s", lineID, active[0].ID)
	}
	return nil
}

// Update merges patch into the stop id and recomputes its duration
func (l *Ledger) Update(ctx context.Context, id string, patch datamodel.StopPatch) (datamodel.StopEvent, error) {
	return l.update(ctx, id, patch, "update", datamodel.EventStopUpdated)
}

// Close sets the end time of a stop
func (l *Ledger) Close(ctx context.Context, id string, endTime string, actorID int) (datamodel.StopEvent, error) {
	if actorID <= 0 {
		return datamodel.StopEvent{}, datamodel.NewValidationError("actor id must be positive")
	}
	return l.update(ctx, id, datamodel.StopPatch{EndTime: &endTime, UpdatedBy: &actorID}, "close", datamodel.EventStopClosed)
}

func (l *Ledger) update(ctx context.Context, id string, patch datamodel.StopPatch, op string, eventType datamodel.LedgerEventType) (datamodel.StopEvent, error) {
	if err := patch.Validate(); err != nil {
		return datamodel.StopEvent{}, err
	}
	stop, err := l.Get(ctx, id)
	if err != nil {
		return datamodel.StopEvent{}, err
	}
	wasOpen := stop.IsOpen()
	if err = patch.Apply(&stop, l.now()); err != nil {
		return datamodel.StopEvent{}, err
	}
	if err = l.repo.UpdateStop(ctx, stop); err != nil {
		return datamodel.StopEvent{}, l.backendError(op+" stop", err)
	}

	actor := 0
	if stop.UpdatedBy != nil {
		actor = *stop.UpdatedBy
	}
	l.committed(ctx, op, eventType, stop, actor)
	if wasOpen && stop.DurationMinutes != nil {
		metrics.StopDurations.Observe(*stop.DurationMinutes)
	}
	return stop, nil
}

// SoftDelete stamps the deletion of a stop. The record stays in storage and in list results.
func (l *Ledger) SoftDelete(ctx context.Context, id string, actorID int) (datamodel.StopEvent, error) {
	if actorID <= 0 {
		return datamodel.StopEvent{}, datamodel.NewValidationError("actor id must be positive")
	}
	stop, err := l.Get(ctx, id)
	if err != nil {
		return datamodel.StopEvent{}, err
	}
	if stop.IsDeleted() {
		return stop, nil
	}
	deletedAt := l.now()
	stop.DeletedAt = &deletedAt
	stop.DeletedBy = &actorID
	if err = l.repo.UpdateStop(ctx, stop); err != nil {
		return datamodel.StopEvent{}, l.backendError("soft delete stop", err)
	}
	l.committed(ctx, "soft_delete", datamodel.EventStopDeleted, stop, actorID)
	return stop, nil
}

// HardDelete removes the stop permanently. Only meant for correcting erroneous entries.
func (l *Ledger) HardDelete(ctx context.Context, id string) error {
	if err := l.repo.DeleteStop(ctx, id); err != nil {
		return l.backendError("hard delete stop", err)
	}
	zap.S().Warnf("Permanently removed stop %s", id)
	l.committed(ctx, "hard_delete", datamodel.EventStopPurged, datamodel.StopEvent{ID: id}, 0)
	return nil
}

// Elapsed returns the minutes a stop has been running so far, or its duration once closed
func (l *Ledger) Elapsed(ctx context.Context, id string) (float64, error) {
	stop, err := l.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if stop.DurationMinutes != nil {
		return *stop.DurationMinutes, nil
	}
	if !stop.IsOpen() {
		return datamodel.DurationMinutes(stop.StartTime, *stop.EndTime)
	}
	return datamodel.ElapsedMinutes(stop.StartTime, l.now())
}

func (l *Ledger) committed(ctx context.Context, op string, eventType datamodel.LedgerEventType, stop datamodel.StopEvent, actor int) {
	metrics.StopMutations.WithLabelValues(op).Inc()
	if l.onChange != nil {
		l.onChange()
	}
	if l.notifier == nil {
		return
	}
	event := datamodel.LedgerEvent{
		Type:       eventType,
		StopID:     stop.ID,
		ActorID:    actor,
		OccurredAt: l.now(),
	}
	if stop.LotID != nil {
		event.LotID = *stop.LotID
	}
	if eventType != datamodel.EventStopPurged {
		event.Payload = stop
	}
	l.notifier.Notify(ctx, event)
}

func (l *Ledger) backendError(op string, err error) error {
	err = datamodel.WrapBackend(op, err)
	if datamodel.IsBackendError(err) {
		metrics.BackendErrors.WithLabelValues(op).Inc()
		zap.S().Errorf("Failed to %s: %s", op, err)
	}
	return err
}
