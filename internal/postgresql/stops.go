package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

const stopColumns = `id, line_id, lot_id, reason_id, shift_id, stop_date::text, start_time::text, end_time::text, duration_minutes,
	operator_id, supervisor_id, reviewed_at, note, created_at, created_by, updated_at, updated_by, deleted_at, deleted_by`

const (
	queryInsertStop = `INSERT INTO stop_event (id, line_id, lot_id, reason_id, shift_id, stop_date, start_time, end_time, duration_minutes,
	operator_id, supervisor_id, reviewed_at, note, created_at, created_by, updated_at, updated_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	queryGetStop = `SELECT ` + stopColumns + ` FROM stop_event WHERE id = $1`

	queryUpdateStop = `UPDATE stop_event SET lot_id = $2, reason_id = $3, start_time = $4, end_time = $5, duration_minutes = $6,
	supervisor_id = $7, reviewed_at = $8, note = $9, updated_at = $10, updated_by = $11, deleted_at = $12, deleted_by = $13
	WHERE id = $1`

	queryDeleteStop = `DELETE FROM stop_event WHERE id = $1`

	queryFindStops = `SELECT ` + stopColumns + ` FROM stop_event
	WHERE ($1::text IS NULL OR lot_id = $1)
	AND ($2::int IS NULL OR line_id = $2)
	AND ($3::int IS NULL OR shift_id = $3)
	AND ($4::bool IS NULL OR (end_time IS NULL) = $4)
	ORDER BY created_at, id`
)

func (c *Connection) InsertStop(ctx context.Context, stop datamodel.StopEvent) error {
	return c.write(ctx, "insert stop", func(ctx context.Context) error {
		_, err := c.db.Exec(ctx, queryInsertStop,
			stop.ID, stop.LineID, stop.LotID, stop.ReasonID, stop.ShiftID, stop.StopDate, stop.StartTime, stop.EndTime, stop.DurationMinutes,
			stop.OperatorID, stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.CreatedAt, stop.CreatedBy, stop.UpdatedAt, stop.UpdatedBy)
		return err
	})
}

func (c *Connection) GetStop(ctx context.Context, id string) (datamodel.StopEvent, error) {
	var stop datamodel.StopEvent
	err := c.read(ctx, "get stop", func(ctx context.Context) error {
		var err error
		stop, err = scanStop(c.db.QueryRow(ctx, queryGetStop, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return datamodel.NewNotFoundError("stop", id)
		}
		return err
	})
	return stop, err
}

// UpdateStop writes every mutable column of stop. The identity and creation columns never change.
func (c *Connection) UpdateStop(ctx context.Context, stop datamodel.StopEvent) error {
	return c.write(ctx, "update stop", func(ctx context.Context) error {
		tag, err := c.db.Exec(ctx, queryUpdateStop,
			stop.ID, stop.LotID, stop.ReasonID, stop.StartTime, stop.EndTime, stop.DurationMinutes,
			stop.SupervisorID, stop.ReviewedAt, stop.Note, stop.UpdatedAt, stop.UpdatedBy, stop.DeletedAt, stop.DeletedBy)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return datamodel.NewNotFoundError("stop", stop.ID)
		}
		return nil
	})
}

func (c *Connection) DeleteStop(ctx context.Context, id string) error {
	return c.write(ctx, "delete stop", func(ctx context.Context) error {
		tag, err := c.db.Exec(ctx, queryDeleteStop, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return datamodel.NewNotFoundError("stop", id)
		}
		return nil
	})
}

// FindStops returns the stops matching filter in creation order, soft deleted ones included
func (c *Connection) FindStops(ctx context.Context, filter datamodel.StopFilter) ([]datamodel.StopEvent, error) {
	var stops []datamodel.StopEvent
	err := c.read(ctx, "find stops", func(ctx context.Context) error {
		rows, err := c.db.Query(ctx, queryFindStops, filter.LotID, filter.LineID, filter.ShiftID, filter.Open)
		if err != nil {
			return err
		}
		defer rows.Close()
		stops = make([]datamodel.StopEvent, 0)
		for rows.Next() {
			stop, err := scanStop(rows)
			if err != nil {
				return err
			}
			stops = append(stops, stop)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stops, nil
}

func scanStop(row pgx.Row) (datamodel.StopEvent, error) {
	var stop datamodel.StopEvent
	var note *string
	err := row.Scan(&stop.ID, &stop.LineID, &stop.LotID, &stop.ReasonID, &stop.ShiftID, &stop.StopDate, &stop.StartTime, &stop.EndTime, &stop.DurationMinutes,
		&stop.OperatorID, &stop.SupervisorID, &stop.ReviewedAt, &note, &stop.CreatedAt, &stop.CreatedBy, &stop.UpdatedAt, &stop.UpdatedBy, &stop.DeletedAt, &stop.DeletedBy)
	if err != nil {
		return datamodel.StopEvent{}, err
	}
	if note != nil {
		stop.Note = *note
	}
	return stop, nil
}
