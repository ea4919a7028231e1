package provisional

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

// ProvisionalStop is a stop recorded locally. SyncedAt is the local version last pushed to the ledger.
type ProvisionalStop struct {
	datamodel.StopEvent
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// Version is the time of the latest local change
func (p ProvisionalStop) Version() time.Time {
	v := p.CreatedAt
	if p.UpdatedAt != nil && p.UpdatedAt.After(v) {
		v = *p.UpdatedAt
	}
	if p.DeletedAt != nil && p.DeletedAt.After(v) {
		v = *p.DeletedAt
	}
	return v
}

// Pending reports whether the ledger has not seen the latest local change yet
func (p ProvisionalStop) Pending() bool {
	return p.SyncedAt == nil || p.Version().After(*p.SyncedAt)
}

func stopAccessors() Accessors[ProvisionalStop] {
	return Accessors[ProvisionalStop]{
		ID: func(p ProvisionalStop) string { return p.ID },
		ForeignKey: func(p ProvisionalStop) string {
			if p.LotID == nil {
				return ""
			}
			return *p.LotID
		},
		SoftDelete: func(p *ProvisionalStop, at time.Time, actorID int) {
			p.DeletedAt = &at
			p.DeletedBy = &actorID
		},
		IsDeleted: func(p ProvisionalStop) bool { return p.IsDeleted() },
	}
}

type StopsOption func(*Stops)

func WithStopsClock(now func() time.Time) StopsOption {
	return func(s *Stops) { s.now = now }
}

func WithStopsIDGenerator(fn func() string) StopsOption {
	return func(s *Stops) { s.newID = fn }
}

// Stops stages downtime records under the provisional stops namespace
type Stops struct {
	store *Store[ProvisionalStop]
	now   func() time.Time
	newID func() string
}

func NewStops(kv KV, opts ...StopsOption) *Stops {
	s := &Stops{
		store: NewStore(kv, internal.ProvisionalStopsNamespace, stopAccessors()),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store.now = s.now
	return s
}

func (s *Stops) ListAll(ctx context.Context) ([]ProvisionalStop, error) {
	return s.store.ListAll(ctx)
}

func (s *Stops) ListByLot(ctx context.Context, lotID string) ([]ProvisionalStop, error) {
	if lotID == "" {
		return nil, datamodel.NewValidationError("lot id is required")
	}
	return s.store.ListByForeignKey(ctx, lotID)
}

func (s *Stops) Get(ctx context.Context, id string) (ProvisionalStop, error) {
	return s.store.Get(ctx, id)
}

// Create stages stop under the same rules the ledger applies
func (s *Stops) Create(ctx context.Context, stop datamodel.StopEvent) (ProvisionalStop, error) {
	if err := stop.Validate(); err != nil {
		return ProvisionalStop{}, err
	}
	if stop.ID == "" {
		stop.ID = s.newID()
	}
	if stop.CreatedAt.IsZero() {
		stop.CreatedAt = s.now()
	}
	if stop.CreatedBy == 0 {
		stop.CreatedBy = stop.OperatorID
	}
	if err := stop.RecomputeDuration(); err != nil {
		return ProvisionalStop{}, err
	}
	p := ProvisionalStop{StopEvent: stop}
	if err := s.store.Upsert(ctx, p); err != nil {
		return ProvisionalStop{}, err
	}
	return p, nil
}

// Update merges patch into the staged stop id
func (s *Stops) Update(ctx context.Context, id string, patch datamodel.StopPatch) (ProvisionalStop, error) {
	if err := patch.Validate(); err != nil {
		return ProvisionalStop{}, err
	}
	return s.store.Update(ctx, id, func(p *ProvisionalStop) error {
		return patch.Apply(&p.StopEvent, s.now())
	})
}

// Remove soft deletes the staged stop, the deletion is pushed to the ledger on the next flush
func (s *Stops) Remove(ctx context.Context, id string, actorID int) (ProvisionalStop, error) {
	return s.store.Remove(ctx, id, actorID)
}

// Purge drops the staged stop without telling the ledger
func (s *Stops) Purge(ctx context.Context, id string) error {
	return s.store.Purge(ctx, id)
}

func (s *Stops) ExportAll(ctx context.Context) ([]byte, error) {
	return s.store.ExportAll(ctx)
}

func (s *Stops) ImportAll(ctx context.Context, data []byte) (int, error) {
	return s.store.ImportAll(ctx, data)
}

// Pending returns the staged stops with changes the ledger has not seen
func (s *Stops) Pending(ctx context.Context) ([]ProvisionalStop, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]ProvisionalStop, 0, len(all))
	for _, p := range all {
		if p.Pending() {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// MarkSynced records that the ledger holds version of the stop id
func (s *Stops) MarkSynced(ctx context.Context, id string, version time.Time) error {
	_, err := s.store.Update(ctx, id, func(p *ProvisionalStop) error {
		p.SyncedAt = &version
		return nil
	})
	return err
}
