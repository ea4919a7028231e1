package provisional

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/shift-ledger/internal/metrics"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// Accessors tell a Store how to read the identity of a record
type Accessors[T any] struct {
	ID         func(T) string
	ForeignKey func(T) string
	// SoftDelete stamps the deletion. Nil for namespaces that only support purge.
	SoftDelete func(record *T, at time.Time, actorID int)
	IsDeleted  func(T) bool
}

// Store is a namespaced list of records serialized as one JSON array in a KV.
// Every operation reads and rewrites the whole list, which is fine for a few hundred records.
// Read-modify-write cycles are serialized within the process only.
type Store[T any] struct {
	kv        KV
	acc       Accessors[T]
	now       func() time.Time
	namespace string
	mu        sync.Mutex
}

func NewStore[T any](kv KV, namespace string, acc Accessors[T]) *Store[T] {
	return &Store[T]{kv: kv, namespace: namespace, acc: acc, now: time.Now}
}

func (s *Store[T]) Namespace() string {
	return s.namespace
}

func (s *Store[T]) load(ctx context.Context) ([]T, error) {
	raw, found, err := s.kv.Get(ctx, s.namespace)
	if err != nil {
		return nil, s.backendError("read", err)
	}
	if !found || len(bytes.TrimSpace(raw)) == 0 {
		return make([]T, 0), nil
	}
	var records []T
	if err = json.Unmarshal(raw, &records); err != nil {
		return nil, s.backendError("decode", fmt.Errorf("namespace %s holds malformed data: %w", s.namespace, err))
	}
	if records == nil {
		records = make([]T, 0)
	}
	return records, nil
}

func (s *Store[T]) save(ctx context.Context, records []T) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err = s.kv.Set(ctx, s.namespace, raw); err != nil {
		return s.backendError("write", err)
	}
	return nil
}

func (s *Store[T]) backendError(op string, err error) error {
	op = "provisional " + op
	metrics.BackendErrors.WithLabelValues(op).Inc()
	zap.S().Errorf("Failed to %s %s: %s", op, s.namespace, err)
	return datamodel.WrapBackend(op, err)
}

func (s *Store[T]) indexOf(records []T, id string) int {
	for i, r := range records {
		if s.acc.ID(r) == id {
			return i
		}
	}
	return -1
}

// ListAll returns every record in insertion order, soft deleted ones included
func (s *Store[T]) ListAll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// ListByForeignKey returns the records whose foreign key equals value
func (s *Store[T]) ListByForeignKey(ctx context.Context, value string) ([]T, error) {
	records, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]T, 0)
	for _, r := range records {
		if s.acc.ForeignKey != nil && s.acc.ForeignKey(r) == value {
			matching = append(matching, r)
		}
	}
	return matching, nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	records, err := s.ListAll(ctx)
	if err != nil {
		return zero, err
	}
	i := s.indexOf(records, id)
	if i < 0 {
		return zero, datamodel.NewNotFoundError(s.namespace, id)
	}
	return records[i], nil
}

// Upsert appends record. A record with the same id is never replaced, use Update for that.
func (s *Store[T]) Upsert(ctx context.Context, record T) error {
	id := s.acc.ID(record)
	if id == "" {
		return datamodel.NewValidationError("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	if s.indexOf(records, id) >= 0 {
		return datamodel.NewConflictError("%s already holds %s", s.namespace, id)
	}
	return s.save(ctx, append(records, record))
}

// Update applies fn to the record id and persists the result. Nothing is written when fn fails.
func (s *Store[T]) Update(ctx context.Context, id string, fn func(record *T) error) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		return zero, err
	}
	i := s.indexOf(records, id)
	if i < 0 {
		return zero, datamodel.NewNotFoundError(s.namespace, id)
	}
	updated := records[i]
	if err = fn(&updated); err != nil {
		return zero, err
	}
	if s.acc.ID(updated) != id {
		return zero, datamodel.NewValidationError("record id cannot change")
	}
	records[i] = updated
	if err = s.save(ctx, records); err != nil {
		return zero, err
	}
	return updated, nil
}

// Remove soft deletes the record id. Removing an already deleted record keeps the first deletion stamp.
func (s *Store[T]) Remove(ctx context.Context, id string, actorID int) (T, error) {
	if s.acc.SoftDelete == nil {
		var zero T
		return zero, datamodel.NewValidationError("%s does not support soft deletion", s.namespace)
	}
	if actorID <= 0 {
		var zero T
		return zero, datamodel.NewValidationError("actor id must be positive")
	}
	return s.Update(ctx, id, func(record *T) error {
		if s.acc.IsDeleted != nil && s.acc.IsDeleted(*record) {
			return nil
		}
		s.acc.SoftDelete(record, s.now(), actorID)
		return nil
	})
}

// Purge removes the record id from the list
func (s *Store[T]) Purge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := s.indexOf(records, id)
	if i < 0 {
		return datamodel.NewNotFoundError(s.namespace, id)
	}
	records = append(records[:i], records[i+1:]...)
	return s.save(ctx, records)
}

// ExportAll returns the whole collection as a JSON array
func (s *Store[T]) ExportAll(ctx context.Context) ([]byte, error) {
	records, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}

// ImportAll replaces the whole collection with data, which must be a JSON array of records with unique ids.
// The previous collection is kept when data is rejected.
func (s *Store[T]) ImportAll(ctx context.Context, data []byte) (int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return 0, datamodel.NewValidationError("import must be a JSON array")
	}
	var records []T
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return 0, datamodel.NewValidationError("import is not a valid array of records: %s", err)
	}
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		id := s.acc.ID(r)
		if id == "" {
			return 0, datamodel.NewValidationError("record %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return 0, datamodel.NewValidationError("record id %s appears twice", id)
		}
		seen[id] = struct{}{}
	}
	if records == nil {
		records = make([]T, 0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, records); err != nil {
		return 0, err
	}
	zap.S().Infof("Imported %d records into %s", len(records), s.namespace)
	return len(records), nil
}
