package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

var (
	stopRowColumns = []string{"id", "line_id", "lot_id", "reason_id", "shift_id", "stop_date", "start_time", "end_time", "duration_minutes",
		"operator_id", "supervisor_id", "reviewed_at", "note", "created_at", "created_by", "updated_at", "updated_by", "deleted_at", "deleted_by"}
	lotRowColumns = []string{"lot_id", "shift_id", "shift_code", "shift_start", "shift_end", "lot_date", "line_id", "line_name", "department_id",
		"lot_status", "shift_status", "stop_count", "stop_minutes", "open_stop_count", "production_count", "controller_quantity", "manual_quantity",
		"quality_count", "scrap_quantity", "rework_minutes", "ideal_cycle_seconds", "oee_calculated", "reviewed_by", "reviewed_at", "review_notes"}
	snapshotRowColumns = []string{"id", "lot_id", "status", "availability", "performance", "quality", "oee", "calculated_at",
		"invalidated_at", "invalidated_by", "invalidation_reason"}

	created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func closedStop() datamodel.StopEvent {
	return datamodel.StopEvent{
		ID:              "s1",
		LineID:          3,
		LotID:           ptr("lot-1"),
		ReasonID:        7,
		ShiftID:         1,
		StopDate:        "2024-05-01",
		StartTime:       "10:00:00",
		EndTime:         ptr("10:30:00"),
		DurationMinutes: ptr(30.0),
		OperatorID:      11,
		Note:            "jam",
		CreatedAt:       created,
		CreatedBy:       11,
	}
}

func stopRow(mock pgxmock.PgxPoolIface, stop datamodel.StopEvent) *pgxmock.Rows {
	return mock.NewRows(stopRowColumns).AddRow(stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID, stop.StopDate, stop.StartTime,
		stop.EndTime, stop.DurationMinutes, stop.OperatorID, stop.SupervisorID, stop.ReviewedAt, ptr(stop.Note), stop.CreatedAt, stop.CreatedBy,
		stop.UpdatedAt, stop.UpdatedBy, stop.DeletedAt, stop.DeletedBy)
}

func TestStops(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	t.Run("insert", func(t *testing.T) {
		stop := closedStop()
		mock.ExpectExec(queryInsertStop).
			WithArgs(stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID, stop.StopDate, stop.StartTime, stop.EndTime, stop.DurationMinutes,
				stop.OperatorID, stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.CreatedAt, stop.CreatedBy, stop.UpdatedAt, stop.UpdatedBy).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, c.InsertStop(ctx, stop))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert keeps update stamp", func(t *testing.T) {
		stop := closedStop()
		stop.UpdatedAt = ptr(stop.CreatedAt.Add(10 * time.Minute))
		stop.UpdatedBy = ptr(31)
		mock.ExpectExec(queryInsertStop).
			WithArgs(stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID, stop.StopDate, stop.StartTime, stop.EndTime, stop.DurationMinutes,
				stop.OperatorID, stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.CreatedAt, stop.CreatedBy, ptr(stop.CreatedAt.Add(10*time.Minute)), ptr(31)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, c.InsertStop(ctx, stop))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert duplicate", func(t *testing.T) {
		stop := closedStop()
		mock.ExpectExec(queryInsertStop).
			WithArgs(stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID, stop.StopDate, stop.StartTime, stop.EndTime, stop.DurationMinutes,
				stop.OperatorID, stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.CreatedAt, stop.CreatedBy, stop.UpdatedAt, stop.UpdatedBy).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key value violates unique constraint"})

		err := c.InsertStop(ctx, stop)
		assert.ErrorIs(t, err, datamodel.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectQuery(queryGetStop).WithArgs("s1").WillReturnRows(stopRow(mock, closedStop()))

		stop, err := c.GetStop(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, closedStop(), stop)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectQuery(queryGetStop).WithArgs("nope").WillReturnRows(mock.NewRows(stopRowColumns))

		_, err := c.GetStop(ctx, "nope")
		assert.ErrorIs(t, err, datamodel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get retries after a connection failure", func(t *testing.T) {
		mock.ExpectQuery(queryGetStop).WithArgs("s1").WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
		mock.ExpectQuery(queryGetStop).WithArgs("s1").WillReturnRows(stopRow(mock, closedStop()))

		stop, err := c.GetStop(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", stop.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update", func(t *testing.T) {
		stop := closedStop()
		stop.UpdatedAt = ptr(created.Add(time.Hour))
		stop.UpdatedBy = ptr(12)
		mock.ExpectExec(queryUpdateStop).
			WithArgs(stop.ID, stop.LotID, stop.ReasonID, stop.StartTime, stop.EndTime, stop.DurationMinutes,
				stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.UpdatedAt, stop.UpdatedBy, stop.DeletedAt, stop.DeletedBy).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, c.UpdateStop(ctx, stop))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update is never retried", func(t *testing.T) {
		stop := closedStop()
		mock.ExpectExec(queryUpdateStop).
			WithArgs(stop.ID, stop.LotID, stop.ReasonID, stop.StartTime, stop.EndTime, stop.DurationMinutes,
				stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.UpdatedAt, stop.UpdatedBy, stop.DeletedAt, stop.DeletedBy).
			WillReturnError(&pgconn.PgError{Severity: "ERROR", Code: "08006", Message: "connection failure"})

		err := c.UpdateStop(ctx, stop)
		assert.True(t, datamodel.IsBackendError(err))
		assert.Equal(t, "ERROR: connection failure (SQLSTATE 08006)", err.Error())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete missing", func(t *testing.T) {
		mock.ExpectExec(queryDeleteStop).WithArgs("nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, c.DeleteStop(ctx, "nope"), datamodel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find", func(t *testing.T) {
		open := datamodel.StopEvent{ID: "s2", LineID: 3, LotID: ptr("lot-1"), ReasonID: 7, ShiftID: 1, StopDate: "2024-05-01",
			StartTime: "11:00:00", OperatorID: 11, CreatedAt: created, CreatedBy: 11}
		rows := stopRow(mock, closedStop())
		rows.AddRow(open.ID, open.LineID, open.LotID, open.ReasonID, open.ShiftID, open.StopDate, open.StartTime,
			nil, nil, open.OperatorID, nil, nil, nil, open.CreatedAt, open.CreatedBy, nil, nil, nil, nil)
		filter := datamodel.StopFilter{LotID: ptr("lot-1")}
		mock.ExpectQuery(queryFindStops).WithArgs(filter.LotID, filter.LineID, filter.ShiftID, filter.Open).WillReturnRows(rows)

		stops, err := c.FindStops(ctx, filter)
		require.NoError(t, err)
		require.Len(t, stops, 2)
		assert.False(t, stops[0].IsOpen())
		assert.True(t, stops[1].IsOpen())
		assert.Equal(t, "", stops[1].Note)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLots(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	lotRow := func(rows *pgxmock.Rows, lotID string, lineID int, code string, lotStatus string, shiftStatus string) *pgxmock.Rows {
		return rows.AddRow(lotID, 1, code, "06:00:00", "14:00:00", "2024-05-01", lineID, "Line", ptr(2),
			lotStatus, shiftStatus, 2, 45.0, 0, 3, 100.0, 20.0, 1, 4.0, 0.0, 30.0, false, nil, nil, nil)
	}

	t.Run("list", func(t *testing.T) {
		filter := datamodel.ShiftFilter{Date: "2024-05-01", DepartmentID: ptr(2)}
		rows := mock.NewRows(lotRowColumns)
		lotRow(rows, "lot-1", 1, "A", "IN_PROGRESS", "OPEN")
		lotRow(rows, "lot-2", 2, "A", "COMPLETED", "")
		mock.ExpectQuery(queryListLots).WithArgs(filter.Date, filter.LineID, filter.DepartmentID).WillReturnRows(rows)

		lots, err := c.ListLots(ctx, filter)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, datamodel.ShiftOpen, lots[0].ShiftStatus)
		assert.Equal(t, datamodel.ShiftStatus(""), lots[1].ShiftStatus)
		assert.Equal(t, datamodel.ShiftClosed, lots[1].EffectiveShiftStatus())
		assert.Equal(t, 120.0, lots[0].TotalQuantity())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get missing", func(t *testing.T) {
		mock.ExpectQuery(queryGetLot).WithArgs("nope").WillReturnRows(mock.NewRows(lotRowColumns))

		_, err := c.GetLot(ctx, "nope")
		assert.ErrorIs(t, err, datamodel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("event detail resolves reasons once", func(t *testing.T) {
		stop := closedStop()
		stopRows := mock.NewRows(append(stopRowColumns, "operator_name")).AddRow(stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID,
			stop.StopDate, stop.StartTime, stop.EndTime, stop.DurationMinutes, stop.OperatorID, nil, nil, ptr("jam"), stop.CreatedAt, stop.CreatedBy,
			nil, nil, nil, nil, "Ana")
		mock.ExpectQuery(queryLotStops).WithArgs("lot-1").WillReturnRows(stopRows)
		mock.ExpectQuery(queryLotProduction).WithArgs("lot-1").WillReturnRows(
			mock.NewRows([]string{"id", "lot_id", "entry_date", "entry_time", "source", "operator_name", "quantity", "operator_id"}).
				AddRow("p1", "lot-1", "2024-05-01", "10:00:00", "CONTROLLER", "Ana", 120.0, 11))
		mock.ExpectQuery(queryLotQuality).WithArgs("lot-1").WillReturnRows(
			mock.NewRows([]string{"reason_id", "id", "lot_id", "entry_date", "entry_time", "kind", "reason_label", "operator_name", "quantity", "rework_minutes", "operator_id"}).
				AddRow(ptr(4), "q1", "lot-1", "2024-05-01", "11:00:00", "SCRAP", "Burn", "Ana", 3.0, 0.0, 11))
		mock.ExpectQuery(queryStopReason).WithArgs(7).WillReturnRows(
			mock.NewRows([]string{"id", "code", "label", "category", "group"}).AddRow(7, "JAM", "Material jam", "Material", "Unplanned"))

		detail, err := c.FetchEventDetail(ctx, "lot-1")
		require.NoError(t, err)
		require.Len(t, detail.Stops, 1)
		assert.Equal(t, "Ana", detail.Stops[0].OperatorName)
		assert.Equal(t, "Material jam", detail.Stops[0].ReasonLabel)
		assert.Equal(t, "Unplanned", detail.Stops[0].ReasonGroup)
		assert.Equal(t, datamodel.ProductionFromController, detail.Production[0].Source)
		assert.Equal(t, datamodel.QualityScrap, detail.Quality[0].Kind)

		// cached
		reason, err := c.GetStopReason(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "JAM", reason.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	at := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	review := datamodel.ReviewCommand{LotID: "lot-1", SupervisorID: 5, ReviewedAt: at, Notes: ptr("ok")}
	reopen := datamodel.ReopenCommand{LotID: "lot-1", SupervisorID: 5, At: at, Reason: "late entry"}

	t.Run("active snapshot", func(t *testing.T) {
		mock.ExpectQuery(queryActiveSnapshot).WithArgs("lot-1", "ACTIVE").WillReturnRows(
			mock.NewRows(snapshotRowColumns).AddRow("snap-1", "lot-1", "ACTIVE", 0.9, 0.8, 0.95, 0.684, at, nil, nil, nil))

		snap, err := c.GetActiveSnapshot(ctx, "lot-1")
		require.NoError(t, err)
		assert.Equal(t, datamodel.SnapshotActive, snap.Status)
		assert.InDelta(t, 0.684, snap.OEE, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no active snapshot", func(t *testing.T) {
		mock.ExpectQuery(queryActiveSnapshot).WithArgs("lot-2", "ACTIVE").WillReturnRows(mock.NewRows(snapshotRowColumns))

		_, err := c.GetActiveSnapshot(ctx, "lot-2")
		assert.ErrorIs(t, err, datamodel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("close in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(queryMarkLotReviewed).WithArgs("lot-1", "COMPLETED", "CLOSED", 5, at, review.Notes).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(c.snapshotQuery).WithArgs("lot-1").WillReturnRows(mock.NewRows([]string{"id"}).AddRow(ptr("snap-2")))
		mock.ExpectCommit()

		id, err := c.CloseLot(ctx, review)
		require.NoError(t, err)
		assert.Equal(t, "snap-2", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("close rolls back when the snapshot fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(queryMarkLotReviewed).WithArgs("lot-1", "COMPLETED", "CLOSED", 5, at, review.Notes).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(c.snapshotQuery).WithArgs("lot-1").WillReturnError(errors.New("division by zero"))
		mock.ExpectRollback()

		_, err := c.CloseLot(ctx, review)
		require.Error(t, err)
		assert.True(t, datamodel.IsBackendError(err))
		assert.Equal(t, "division by zero", err.Error())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reopen in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(queryInvalidateSnapshots).WithArgs("lot-1", "INVALIDATED", at, 5, "late entry", "ACTIVE").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(queryRevertLot).WithArgs("lot-1", "IN_PROGRESS", "OPEN", at, 5).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		n, err := c.ReopenLot(ctx, reopen)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reopen of a missing lot rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(queryInvalidateSnapshots).WithArgs("lot-1", "INVALIDATED", at, 5, "late entry", "ACTIVE").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(queryRevertLot).WithArgs("lot-1", "IN_PROGRESS", "OPEN", at, 5).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		_, err := c.ReopenLot(ctx, reopen)
		assert.ErrorIs(t, err, datamodel.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("single steps", func(t *testing.T) {
		mock.ExpectExec(queryMarkLotReviewed).WithArgs("lot-1", "COMPLETED", "CLOSED", 5, at, review.Notes).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(c.snapshotQuery).WithArgs("lot-1").WillReturnRows(mock.NewRows([]string{"id"}).AddRow(ptr("snap-3")))
		mock.ExpectExec(queryInvalidateSnapshots).WithArgs("lot-1", "INVALIDATED", at, 5, "late entry", "ACTIVE").
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mock.ExpectExec(queryRevertLot).WithArgs("lot-1", "IN_PROGRESS", "OPEN", at, 5).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(queryTransitionLot).WithArgs("lot-1", "CANCELLED", "CANCELLED", at, 5).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, c.MarkLotReviewed(ctx, review))
		id, err := c.CalculateSnapshot(ctx, "lot-1")
		require.NoError(t, err)
		assert.Equal(t, "snap-3", id)
		n, err := c.InvalidateActiveSnapshots(ctx, reopen)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, c.RevertLotToInProgress(ctx, reopen))
		require.NoError(t, c.TransitionLot(ctx, datamodel.TransitionCommand{LotID: "lot-1", To: datamodel.ShiftCancelled, At: at, ActorID: 5}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "08001"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: pgUniqueViolation}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: pgUniqueViolation}), datamodel.ErrConflict)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: pgForeignKeyViolation}), datamodel.ErrValidation)
	plain := errors.New("boom")
	assert.Equal(t, plain, translate(plain))
}
