package supervision

import (
	"context"
	"fmt"
	"sync"

	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

// fakeBackend keeps lots and snapshots in memory and can fail any method on demand
type fakeBackend struct {
	lots      map[string]datamodel.LotSummary
	detail    map[string]datamodel.EventDetail
	failOn    map[string]error
	snapshots []datamodel.OEESnapshot
	calls     []string
	listCalls int
	mu        sync.Mutex
}

func newFakeBackend(lots ...datamodel.LotSummary) *fakeBackend {
	b := &fakeBackend{
		lots:   make(map[string]datamodel.LotSummary),
		detail: make(map[string]datamodel.EventDetail),
		failOn: make(map[string]error),
	}
	for _, lot := range lots {
		b.lots[lot.LotID] = lot
	}
	return b
}

func (b *fakeBackend) record(call string) error {
	b.calls = append(b.calls, call)
	return b.failOn[call]
}

func (b *fakeBackend) lot(lotID string) datamodel.LotSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lots[lotID]
}

func (b *fakeBackend) snapshotsOf(lotID string) []datamodel.OEESnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var found []datamodel.OEESnapshot
	for _, snap := range b.snapshots {
		if snap.LotID == lotID {
			found = append(found, snap)
		}
	}
	return found
}

func (b *fakeBackend) GetLot(_ context.Context, lotID string) (datamodel.LotSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("GetLot"); err != nil {
		return datamodel.LotSummary{}, err
	}
	lot, ok := b.lots[lotID]
	if !ok {
		return datamodel.LotSummary{}, datamodel.NewNotFoundError("lot", lotID)
	}
	return lot, nil
}

func (b *fakeBackend) ListLots(_ context.Context, filter datamodel.ShiftFilter) ([]datamodel.LotSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	if err := b.record("ListLots"); err != nil {
		return nil, err
	}
	var lots []datamodel.LotSummary
	for _, lot := range b.lots {
		if lot.Date != filter.Date {
			continue
		}
		if filter.LineID != nil && lot.LineID != *filter.LineID {
			continue
		}
		if filter.DepartmentID != nil && (lot.DepartmentID == nil || *lot.DepartmentID != *filter.DepartmentID) {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (b *fakeBackend) FetchEventDetail(_ context.Context, lotID string) (datamodel.EventDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("FetchEventDetail"); err != nil {
		return datamodel.EventDetail{}, err
	}
	return b.detail[lotID], nil
}

func (b *fakeBackend) GetActiveSnapshot(_ context.Context, lotID string) (datamodel.OEESnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("GetActiveSnapshot"); err != nil {
		return datamodel.OEESnapshot{}, err
	}
	for _, snap := range b.snapshots {
		if snap.LotID == lotID && snap.Status == datamodel.SnapshotActive {
			return snap, nil
		}
	}
	return datamodel.OEESnapshot{}, datamodel.NewNotFoundError("active snapshot of lot", lotID)
}

func (b *fakeBackend) MarkLotReviewed(_ context.Context, cmd datamodel.ReviewCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("MarkLotReviewed"); err != nil {
		return err
	}
	lot := b.lots[cmd.LotID]
	lot.LotStatus = datamodel.LotCompleted
	lot.ShiftStatus = datamodel.ShiftClosed
	lot.ReviewedBy = &cmd.SupervisorID
	lot.ReviewedAt = &cmd.ReviewedAt
	lot.ReviewNotes = cmd.Notes
	b.lots[cmd.LotID] = lot
	return nil
}

func (b *fakeBackend) InvalidateActiveSnapshots(_ context.Context, cmd datamodel.ReopenCommand) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("InvalidateActiveSnapshots"); err != nil {
		return 0, err
	}
	var n int64
	for i, snap := range b.snapshots {
		if snap.LotID == cmd.LotID && snap.Status == datamodel.SnapshotActive {
			at, by, reason := cmd.At, cmd.SupervisorID, cmd.Reason
			b.snapshots[i].Status = datamodel.SnapshotInvalidated
			b.snapshots[i].InvalidatedAt = &at
			b.snapshots[i].InvalidatedBy = &by
			b.snapshots[i].InvalidationReason = &reason
			n++
		}
	}
	lot := b.lots[cmd.LotID]
	lot.OEECalculated = false
	b.lots[cmd.LotID] = lot
	return n, nil
}

func (b *fakeBackend) RevertLotToInProgress(_ context.Context, cmd datamodel.ReopenCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("RevertLotToInProgress"); err != nil {
		return err
	}
	lot := b.lots[cmd.LotID]
	lot.LotStatus = datamodel.LotInProgress
	lot.ShiftStatus = datamodel.ShiftOpen
	lot.ReviewedBy = nil
	lot.ReviewedAt = nil
	b.lots[cmd.LotID] = lot
	return nil
}

func (b *fakeBackend) TransitionLot(_ context.Context, cmd datamodel.TransitionCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("TransitionLot"); err != nil {
		return err
	}
	lot := b.lots[cmd.LotID]
	lot.ShiftStatus = cmd.To
	lot.LotStatus = cmd.To.LotStatus()
	b.lots[cmd.LotID] = lot
	return nil
}

// CalculateSnapshot plays the backend function: it inserts an ACTIVE snapshot and flags the lot
func (b *fakeBackend) CalculateSnapshot(_ context.Context, lotID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("CalculateSnapshot"); err != nil {
		return "", err
	}
	id := fmt.Sprintf("snap-%d", len(b.snapshots)+1)
	b.snapshots = append(b.snapshots, datamodel.OEESnapshot{ID: id, LotID: lotID, Status: datamodel.SnapshotActive})
	lot := b.lots[lotID]
	lot.OEECalculated = true
	b.lots[lotID] = lot
	return id, nil
}

// atomicFake runs close/reopen as one step on top of fakeBackend, rolling back on failure
type atomicFake struct {
	*fakeBackend
}

func (a atomicFake) CloseLot(ctx context.Context, cmd datamodel.ReviewCommand) (string, error) {
	before := a.lot(cmd.LotID)
	if err := a.MarkLotReviewed(ctx, cmd); err != nil {
		return "", err
	}
	id, err := a.CalculateSnapshot(ctx, cmd.LotID)
	if err != nil {
		a.mu.Lock()
		a.lots[cmd.LotID] = before
		a.mu.Unlock()
		return "", err
	}
	return id, nil
}

func (a atomicFake) ReopenLot(ctx context.Context, cmd datamodel.ReopenCommand) (int64, error) {
	n, err := a.InvalidateActiveSnapshots(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return n, a.RevertLotToInProgress(ctx, cmd)
}
