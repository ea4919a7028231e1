package provisional

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/shift-ledger/internal/downtime"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

func newReconcilerFixture(c *clock) (*Stops, *downtime.Ledger, *Reconciler) {
	stops := newTestStops(NewMemoryKV(), c)
	ledger := downtime.NewLedger(downtime.NewMemoryRepository(), downtime.WithClock(c.now))
	return stops, ledger, NewReconciler(stops, ledger, "")
}

func TestFlushCreatesThenSyncs(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	stops, ledger, r := newReconcilerFixture(c)

	staged, err := stops.Create(ctx, stagedStop("L1", "07:00", nil))
	require.NoError(t, err)

	report, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.ID}, report.Synced)
	assert.Empty(t, report.Failures)

	stop, err := ledger.Get(ctx, staged.ID)
	require.NoError(t, err)
	assert.True(t, stop.IsOpen())

	pending, err := stops.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// nothing left to push
	report, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Synced)
}

func TestFlushPushesUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	stops, ledger, r := newReconcilerFixture(c)

	staged, err := stops.Create(ctx, stagedStop("L1", "07:00", nil))
	require.NoError(t, err)
	_, err = r.Flush(ctx)
	require.NoError(t, err)

	c.advance(30 * time.Minute)
	_, err = stops.Update(ctx, staged.ID, datamodel.StopPatch{EndTime: ptr("07:30"), Note: ptr("belt"), UpdatedBy: ptr(21)})
	require.NoError(t, err)

	report, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.ID}, report.Synced)
	stop, err := ledger.Get(ctx, staged.ID)
	require.NoError(t, err)
	require.NotNil(t, stop.DurationMinutes)
	assert.InDelta(t, 30.0, *stop.DurationMinutes, 1e-9)
	assert.Equal(t, "belt", stop.Note)

	c.advance(time.Minute)
	_, err = stops.Remove(ctx, staged.ID, 30)
	require.NoError(t, err)
	_, err = r.Flush(ctx)
	require.NoError(t, err)
	stop, err = ledger.Get(ctx, staged.ID)
	require.NoError(t, err)
	assert.True(t, stop.IsDeleted())
	assert.Equal(t, 30, *stop.DeletedBy)
}

func TestFlushKeepsReviewTimeOfUnchangedSupervisor(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	stops, ledger, r := newReconcilerFixture(c)

	staged, err := stops.Create(ctx, stagedStop("L1", "07:00", ptr("07:20")))
	require.NoError(t, err)
	_, err = r.Flush(ctx)
	require.NoError(t, err)

	c.advance(time.Minute)
	reviewedAt := c.now()
	_, err = stops.Update(ctx, staged.ID, datamodel.StopPatch{SupervisorID: ptr(40)})
	require.NoError(t, err)
	_, err = r.Flush(ctx)
	require.NoError(t, err)
	stop, err := ledger.Get(ctx, staged.ID)
	require.NoError(t, err)
	require.NotNil(t, stop.ReviewedAt)
	assert.Equal(t, reviewedAt, *stop.ReviewedAt)

	c.advance(time.Hour)
	_, err = stops.Update(ctx, staged.ID, datamodel.StopPatch{Note: ptr("motor swapped")})
	require.NoError(t, err)
	report, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.ID}, report.Synced)

	stop, err = ledger.Get(ctx, staged.ID)
	require.NoError(t, err)
	assert.Equal(t, "motor swapped", stop.Note)
	assert.Equal(t, 40, *stop.SupervisorID)
	assert.Equal(t, reviewedAt, *stop.ReviewedAt)
}

func TestFlushSkipsStopsDeletedBeforeFirstSync(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	stops, ledger, r := newReconcilerFixture(c)

	staged, err := stops.Create(ctx, stagedStop("L1", "07:00", nil))
	require.NoError(t, err)
	_, err = stops.Remove(ctx, staged.ID, 21)
	require.NoError(t, err)

	report, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.ID}, report.Synced)
	_, err = ledger.Get(ctx, staged.ID)
	assert.ErrorIs(t, err, datamodel.ErrNotFound)
}

type rejectingLedger struct {
	StopLedger
	reject string
}

func (l rejectingLedger) Create(ctx context.Context, stop datamodel.StopEvent) (datamodel.StopEvent, error) {
	if stop.ID == l.reject {
		return datamodel.StopEvent{}, errors.New("connection reset by peer")
	}
	return l.StopLedger.Create(ctx, stop)
}

func TestFlushReportsFailuresAndKeepsThemPending(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	stops, ledger, _ := newReconcilerFixture(c)

	bad, err := stops.Create(ctx, stagedStop("L1", "07:00", nil))
	require.NoError(t, err)
	good, err := stops.Create(ctx, stagedStop("L1", "08:00", ptr("08:10")))
	require.NoError(t, err)

	r := NewReconciler(stops, rejectingLedger{StopLedger: ledger, reject: bad.ID}, "")
	report, err := r.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, []string{good.ID}, report.Synced)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad.ID, report.Failures[0].ID)

	pending, err := stops.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].ID)
}

func TestFlushDoesNotOverlap(t *testing.T) {
	c := newClock()
	_, _, r := newReconcilerFixture(c)

	r.running.Lock()
	_, err := r.Flush(context.Background())
	r.running.Unlock()
	assert.ErrorIs(t, err, datamodel.ErrConflict)
}

func TestReconcilerSchedule(t *testing.T) {
	c := newClock()
	stops, ledger, _ := newReconcilerFixture(c)

	assert.Error(t, NewReconciler(stops, ledger, "not a schedule").Start())

	r := NewReconciler(stops, ledger, "@every 1h")
	require.NoError(t, r.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}

func TestProvisionalStopPending(t *testing.T) {
	created := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	p := ProvisionalStop{StopEvent: datamodel.StopEvent{CreatedAt: created}}
	assert.True(t, p.Pending())

	p.SyncedAt = ptr(created)
	assert.False(t, p.Pending())

	p.UpdatedAt = ptr(created.Add(time.Second))
	assert.True(t, p.Pending())
	assert.Equal(t, created.Add(time.Second), p.Version())

	p.DeletedAt = ptr(created.Add(time.Minute))
	assert.Equal(t, created.Add(time.Minute), p.Version())
}
