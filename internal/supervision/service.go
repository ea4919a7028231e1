// Package supervision surfaces per lot shift rollups and drives the shift close/reopen state machine.
package supervision

import (
	"context"
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// Backend is the relational store behind the service.
// Every method is a single call that either succeeds or fails atomically.
type Backend interface {
	GetLot(ctx context.Context, lotID string) (datamodel.LotSummary, error)
	ListLots(ctx context.Context, filter datamodel.ShiftFilter) ([]datamodel.LotSummary, error)
	FetchEventDetail(ctx context.Context, lotID string) (datamodel.EventDetail, error)
	// GetActiveSnapshot returns an error wrapping datamodel.ErrNotFound when the lot has no ACTIVE snapshot
	GetActiveSnapshot(ctx context.Context, lotID string) (datamodel.OEESnapshot, error)

	// MarkLotReviewed sets the lot COMPLETED, the shift CLOSED and stamps the reviewer
	MarkLotReviewed(ctx context.Context, cmd datamodel.ReviewCommand) error
	// InvalidateActiveSnapshots flips every ACTIVE snapshot of the lot to INVALIDATED and returns how many changed
	InvalidateActiveSnapshots(ctx context.Context, cmd datamodel.ReopenCommand) (int64, error)
	// RevertLotToInProgress sets the lot IN_PROGRESS, the shift OPEN and clears the reviewer
	RevertLotToInProgress(ctx context.Context, cmd datamodel.ReopenCommand) error
	// TransitionLot writes a status change that carries no review data (start, cancel)
	TransitionLot(ctx context.Context, cmd datamodel.TransitionCommand) error
}

// SnapshotCalculator computes and persists the OEE snapshot of a lot and returns the snapshot id
type SnapshotCalculator interface {
	CalculateSnapshot(ctx context.Context, lotID string) (string, error)
}

// AtomicTransitions is implemented by backends able to run every step of close and reopen in one transaction.
// When configured, the service calls these instead of running the steps one by one.
type AtomicTransitions interface {
	CloseLot(ctx context.Context, cmd datamodel.ReviewCommand) (snapshotID string, err error)
	ReopenLot(ctx context.Context, cmd datamodel.ReopenCommand) (invalidated int64, err error)
}

// EventNotifier receives committed transitions
type EventNotifier interface {
	Notify(ctx context.Context, event datamodel.LedgerEvent)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n EventNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithCache caches shift listings in c. Every transition invalidates it.
func WithCache(c *internal.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithAtomicTransitions runs close and reopen through a, each in a single transaction
func WithAtomicTransitions(a AtomicTransitions) Option {
	return func(s *Service) { s.atomic = a }
}

// WithLocks replaces the per lot lock
func WithLocks(m *mapmutex.Mutex) Option {
	return func(s *Service) { s.locks = m }
}

// Service is the Shift Supervision Service
type Service struct {
	backend    Backend
	calculator SnapshotCalculator
	atomic     AtomicTransitions
	notifier   EventNotifier
	cache      *internal.ResultCache
	locks      *mapmutex.Mutex
	now        func() time.Time
}

func NewService(backend Backend, calculator SnapshotCalculator, opts ...Option) *Service {
	s := &Service{
		backend:    backend,
		calculator: calculator,
		now:        time.Now,
		// a lot still locked after the retries is reported as ErrConflict
		locks: mapmutex.NewCustomizedMapMutex(100, 100000000, 1000000, 1.1, 0.2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes transitions of one lot inside this process
func (s *Service) lock(lotID string) (unlock func(), err error) {
	if !s.locks.TryLock(lotID) {
		return nil, datamodel.NewConflictError("lot %s has a transition in progress", lotID)
	}
	return func() { s.locks.Unlock(lotID) }, nil
}

// GetShift returns the rollup of one lot
func (s *Service) GetShift(ctx context.Context, lotID string) (datamodel.LotSummary, error) {
	if lotID == "" {
		return datamodel.LotSummary{}, datamodel.NewValidationError("lot id is required")
	}
	lot, err := s.backend.GetLot(ctx, lotID)
	if err != nil {
		return datamodel.LotSummary{}, backendError("get lot", err)
	}
	return lot, nil
}

// InvalidateCache drops cached listings, for mutations made outside the service
func (s *Service) InvalidateCache() {
	s.cache.Invalidate()
}

func (s *Service) committed(ctx context.Context, eventType datamodel.LedgerEventType, lotID string, actor int, payload any) {
	s.cache.Invalidate()
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, datamodel.LedgerEvent{
		Type:       eventType,
		LotID:      lotID,
		ActorID:    actor,
		OccurredAt: s.now(),
		Payload:    payload,
	})
}

func backendError(op string, err error) error {
	err = datamodel.WrapBackend(op, err)
	if datamodel.IsBackendError(err) {
		metrics.BackendErrors.WithLabelValues(op).Inc()
		zap.S().Errorf("Failed to %s: %s", op, err)
	}
	return err
}
