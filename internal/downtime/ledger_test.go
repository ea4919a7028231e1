package downtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

func ptr[T any](v T) *T {
	return &v
}

var fixedNow = time.Date(2024, 3, 2, 0, 20, 0, 0, time.UTC)

type recordingNotifier struct {
	events []datamodel.LedgerEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event datamodel.LedgerEvent) {
	r.events = append(r.events, event)
}

func newTestLedger(opts ...Option) (*Ledger, *MemoryRepository) {
	repo := NewMemoryRepository()
	ids := 0
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("stop-%d", ids) }),
	}, opts...)
	return NewLedger(repo, opts...), repo
}

func newStop(lot string, start string, end *string) datamodel.StopEvent {
	return datamodel.StopEvent{
		LotID:      ptr(lot),
		LineID:     1,
		ReasonID:   4,
		ShiftID:    2,
		OperatorID: 11,
		StopDate:   "2024-03-01",
		StartTime:  start,
		EndTime:    end,
	}
}

func TestCreateAssignsIDAndDerivesDuration(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	stop := newStop("L1", "23:30", ptr("00:15"))
	stop.DurationMinutes = ptr(999.0)
	created, err := ledger.Create(ctx, stop)
	require.NoError(t, err)

	assert.Equal(t, "stop-1", created.ID)
	assert.Equal(t, fixedNow, created.CreatedAt)
	assert.Equal(t, 11, created.CreatedBy)
	require.NotNil(t, created.DurationMinutes)
	assert.InDelta(t, 45, *created.DurationMinutes, 1e-9)

	kept, err := ledger.Create(ctx, datamodel.StopEvent{ID: "local-7", LineID: 1, ReasonID: 1, OperatorID: 3, StopDate: "2024-03-01", StartTime: "08:00"})
	require.NoError(t, err)
	assert.Equal(t, "local-7", kept.ID)
}

func TestCreateRejectsInvalidStop(t *testing.T) {
	ledger, repo := newTestLedger()
	_, err := ledger.Create(context.Background(), newStop("L1", "", nil))
	assert.ErrorIs(t, err, datamodel.ErrValidation)

	stops, _ := repo.FindStops(context.Background(), datamodel.StopFilter{})
	assert.Empty(t, stops)
}

func TestOpenStopMarker(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	ends := []*string{nil, ptr("09:00"), nil, ptr("00:05"), ptr("10:30:30")}
	for _, end := range ends {
		_, err := ledger.Create(ctx, newStop("L1", "08:00", end))
		require.NoError(t, err)
	}
	_, err := ledger.Create(ctx, newStop("L2", "08:00", nil))
	require.NoError(t, err)

	open, err := ledger.ListOpenStops(ctx, "L1")
	require.NoError(t, err)
	closed, err := ledger.ListClosedStops(ctx, "L1")
	require.NoError(t, err)

	assert.Len(t, open, 2)
	assert.Len(t, closed, 3)
	for _, stop := range open {
		assert.Nil(t, stop.EndTime)
		assert.Nil(t, stop.DurationMinutes)
		for _, c := range closed {
			assert.NotEqual(t, stop.ID, c.ID)
		}
	}
	for _, stop := range closed {
		assert.NotNil(t, stop.DurationMinutes)
	}

	_, err = ledger.ListOpenStops(ctx, "")
	assert.ErrorIs(t, err, datamodel.ErrValidation)
}

func TestListByLineAndShift(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	a := newStop("L1", "08:00", nil)
	b := newStop("L1", "09:00", nil)
	b.LineID = 2
	b.ShiftID = 3
	_, err := ledger.Create(ctx, a)
	require.NoError(t, err)
	_, err = ledger.Create(ctx, b)
	require.NoError(t, err)

	byLine, err := ledger.ListByLine(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byLine, 1)
	assert.Equal(t, "09:00", byLine[0].StartTime)

	byShift, err := ledger.ListByShift(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byShift, 1)
	assert.Equal(t, "08:00", byShift[0].StartTime)
}

func TestUpdateRecomputesDurationAndStampsUpdatedAt(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	created, err := ledger.Create(ctx, newStop("L1", "08:00", ptr("09:00")))
	require.NoError(t, err)

	updated, err := ledger.Update(ctx, created.ID, datamodel.StopPatch{StartTime: ptr("08:30"), UpdatedBy: ptr(12)})
	require.NoError(t, err)
	assert.InDelta(t, 30, *updated.DurationMinutes, 1e-9)
	assert.Equal(t, fixedNow, *updated.UpdatedAt)
	assert.Equal(t, 12, *updated.UpdatedBy)

	stored, err := ledger.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestUpdateUnknownStopIsNotFound(t *testing.T) {
	ledger, _ := newTestLedger()
	_, err := ledger.Update(context.Background(), "missing", datamodel.StopPatch{Note: ptr("x")})
	assert.ErrorIs(t, err, datamodel.ErrNotFound)
	assert.False(t, errors.Is(err, datamodel.ErrValidation))

	_, err = ledger.Update(context.Background(), "missing", datamodel.StopPatch{EndTime: ptr("nope")})
	assert.ErrorIs(t, err, datamodel.ErrValidation)
}

func TestCloseAcrossMidnight(t *testing.T) {
	notifier := &recordingNotifier{}
	ledger, _ := newTestLedger(WithNotifier(notifier))
	ctx := context.Background()

	created, err := ledger.Create(ctx, newStop("L1", "23:30", nil))
	require.NoError(t, err)
	closed, err := ledger.Close(ctx, created.ID, "00:15", 11)
	require.NoError(t, err)

	assert.InDelta(t, 45, *closed.DurationMinutes, 1e-9)
	assert.Equal(t, 11, *closed.UpdatedBy)
	require.Len(t, notifier.events, 2)
	assert.Equal(t, datamodel.EventStopCreated, notifier.events[0].Type)
	assert.Equal(t, datamodel.EventStopClosed, notifier.events[1].Type)
	assert.Equal(t, "L1", notifier.events[1].LotID)

	_, err = ledger.Close(ctx, created.ID, "00:30", 0)
	assert.ErrorIs(t, err, datamodel.ErrValidation)
}

func TestSoftDeleteKeepsRecordInLists(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	created, err := ledger.Create(ctx, newStop("L1", "08:00", nil))
	require.NoError(t, err)

	deleted, err := ledger.SoftDelete(ctx, created.ID, 11)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, *deleted.DeletedAt)
	assert.Equal(t, 11, *deleted.DeletedBy)

	open, err := ledger.ListOpenStops(ctx, "L1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].IsDeleted())
	assert.Empty(t, datamodel.ActiveStops(open))

	again, err := ledger.SoftDelete(ctx, created.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 11, *again.DeletedBy)
}

func TestHardDelete(t *testing.T) {
	changes := 0
	ledger, _ := newTestLedger(WithChangeHook(func() { changes++ }))
	ctx := context.Background()
	created, err := ledger.Create(ctx, newStop("L1", "08:00", nil))
	require.NoError(t, err)

	require.NoError(t, ledger.HardDelete(ctx, created.ID))
	_, err = ledger.Get(ctx, created.ID)
	assert.ErrorIs(t, err, datamodel.ErrNotFound)
	assert.ErrorIs(t, ledger.HardDelete(ctx, created.ID), datamodel.ErrNotFound)
	assert.Equal(t, 2, changes)
}

func TestSingleOpenStopPerLine(t *testing.T) {
	ledger, _ := newTestLedger(WithSingleOpenStopPerLine(true))
	ctx := context.Background()

	first, err := ledger.Create(ctx, newStop("L1", "08:00", nil))
	require.NoError(t, err)
	_, err = ledger.Create(ctx, newStop("L1", "08:05", nil))
	assert.ErrorIs(t, err, datamodel.ErrConflict)

	// closed stops and other lines are never blocked
	_, err = ledger.Create(ctx, newStop("L1", "07:00", ptr("07:30")))
	assert.NoError(t, err)
	other := newStop("L9", "08:05", nil)
	other.LineID = 9
	_, err = ledger.Create(ctx, other)
	assert.NoError(t, err)

	_, err = ledger.Close(ctx, first.ID, "08:10", 11)
	require.NoError(t, err)
	_, err = ledger.Create(ctx, newStop("L1", "08:15", nil))
	assert.NoError(t, err)
}

func TestOverlappingOpenStopsPermittedByDefault(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	_, err := ledger.Create(ctx, newStop("L1", "08:00", nil))
	require.NoError(t, err)
	_, err = ledger.Create(ctx, newStop("L1", "08:05", nil))
	assert.NoError(t, err)
}

func TestElapsed(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	open, err := ledger.Create(ctx, newStop("L1", "23:50", nil))
	require.NoError(t, err)
	elapsed, err := ledger.Elapsed(ctx, open.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30, elapsed, 1e-9)

	closed, err := ledger.Create(ctx, newStop("L1", "08:00", ptr("16:30")))
	require.NoError(t, err)
	elapsed, err = ledger.Elapsed(ctx, closed.ID)
	require.NoError(t, err)
	assert.InDelta(t, 510, elapsed, 1e-9)
}

func TestStatistics(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	mk := func(reason int, start string, end *string) {
		s := newStop("L1", start, end)
		s.ReasonID = reason
		_, err := ledger.Create(ctx, s)
		require.NoError(t, err)
	}
	mk(1, "08:00", ptr("08:10"))
	mk(2, "09:00", ptr("09:30"))
	mk(1, "10:00", ptr("10:30"))
	mk(3, "11:00", nil)
	deleted, err := ledger.Create(ctx, newStop("L1", "12:00", ptr("14:00")))
	require.NoError(t, err)
	_, err = ledger.SoftDelete(ctx, deleted.ID, 11)
	require.NoError(t, err)

	stats, err := ledger.Statistics(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 1, stats.OpenCount)
	assert.InDelta(t, 70, stats.TotalMinutes, 1e-9)
	assert.InDelta(t, 70.0/3, stats.MeanMinutes, 1e-9)
	assert.InDelta(t, 30, stats.LongestMinutes, 1e-9)
	require.Len(t, stats.Pareto, 2)
	assert.Equal(t, ReasonTotal{ReasonID: 1, Count: 2, Minutes: 40}, stats.Pareto[0])
	assert.Equal(t, ReasonTotal{ReasonID: 2, Count: 1, Minutes: 30}, stats.Pareto[1])
}

type failingRepository struct {
	*MemoryRepository
	err error
}

func (f *failingRepository) FindStops(context.Context, datamodel.StopFilter) ([]datamodel.StopEvent, error) {
	return nil, f.err
}

func (f *failingRepository) InsertStop(context.Context, datamodel.StopEvent) error {
	return f.err
}

func TestBackendErrorsPropagateVerbatim(t *testing.T) {
	backendErr := errors.New("permission denied for table stop_events")
	ledger := NewLedger(&failingRepository{MemoryRepository: NewMemoryRepository(), err: backendErr})
	ctx := context.Background()

	_, err := ledger.ListByLine(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, backendErr.Error(), err.Error())
	assert.ErrorIs(t, err, backendErr)
	assert.True(t, datamodel.IsBackendError(err))

	_, err = ledger.Create(ctx, newStop("L1", "08:00", nil))
	assert.ErrorIs(t, err, backendErr)
}
