package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
)

const (
	queryActiveSnapshot = `SELECT id, lot_id, status, availability, performance, quality, oee, calculated_at, invalidated_at, invalidated_by, invalidation_reason
	FROM oee_snapshot WHERE lot_id = $1 AND status = $2
	ORDER BY calculated_at DESC LIMIT 1`

	queryMarkLotReviewed = `UPDATE lot SET status = $2, shift_status = $3, reviewed_by = $4, reviewed_at = $5, review_notes = $6,
	updated_at = $5, updated_by = $4 WHERE id = $1`

	queryInvalidateSnapshots = `UPDATE oee_snapshot SET status = $2, invalidated_at = $3, invalidated_by = $4, invalidation_reason = $5
	WHERE lot_id = $1 AND status = $6`

	queryRevertLot = `UPDATE lot SET status = $2, shift_status = $3, reviewed_by = NULL, reviewed_at = NULL, review_notes = NULL,
	updated_at = $4, updated_by = $5 WHERE id = $1`

	queryTransitionLot = `UPDATE lot SET status = $2, shift_status = $3, updated_at = $4, updated_by = $5 WHERE id = $1`
)

// snapshotQuery calls the snapshot function, which computes and stores the OEE of a lot and returns the snapshot id
func snapshotQuery(function string) string {
	return `SELECT ` + pgx.Identifier{function}.Sanitize() + `($1)::text`
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) GetActiveSnapshot(ctx context.Context, lotID string) (datamodel.OEESnapshot, error) {
	var snap datamodel.OEESnapshot
	err := c.read(ctx, "get active snapshot", func(ctx context.Context) error {
		var status string
		err := c.db.QueryRow(ctx, queryActiveSnapshot, lotID, string(datamodel.SnapshotActive)).Scan(
			&snap.ID, &snap.LotID, &status, &snap.Availability, &snap.Performance, &snap.Quality, &snap.OEE,
			&snap.CalculatedAt, &snap.InvalidatedAt, &snap.InvalidatedBy, &snap.InvalidationReason)
		if errors.Is(err, pgx.ErrNoRows) {
			return datamodel.NewNotFoundError("active snapshot of lot", lotID)
		}
		snap.Status = datamodel.SnapshotStatus(status)
		return err
	})
	if err != nil {
		return datamodel.OEESnapshot{}, err
	}
	return snap, nil
}

// CalculateSnapshot runs the snapshot function. It is never retried, a retry could store a second snapshot.
func (c *Connection) CalculateSnapshot(ctx context.Context, lotID string) (string, error) {
	var id string
	err := c.write(ctx, "calculate snapshot", func(ctx context.Context) error {
		var err error
		id, err = calculateSnapshot(ctx, c.db, c.snapshotQuery, lotID)
		return err
	})
	return id, err
}

func (c *Connection) MarkLotReviewed(ctx context.Context, cmd datamodel.ReviewCommand) error {
	return c.write(ctx, "mark lot reviewed", func(ctx context.Context) error {
		return markLotReviewed(ctx, c.db, cmd)
	})
}

func (c *Connection) InvalidateActiveSnapshots(ctx context.Context, cmd datamodel.ReopenCommand) (int64, error) {
	var n int64
	err := c.write(ctx, "invalidate snapshots", func(ctx context.Context) error {
		var err error
		n, err = invalidateSnapshots(ctx, c.db, cmd)
		return err
	})
	return n, err
}

func (c *Connection) RevertLotToInProgress(ctx context.Context, cmd datamodel.ReopenCommand) error {
	return c.write(ctx, "revert lot", func(ctx context.Context) error {
		return revertLot(ctx, c.db, cmd)
	})
}

func (c *Connection) TransitionLot(ctx context.Context, cmd datamodel.TransitionCommand) error {
	return c.write(ctx, "transition lot", func(ctx context.Context) error {
		tag, err := c.db.Exec(ctx, queryTransitionLot, cmd.LotID, string(cmd.To.LotStatus()), string(cmd.To), cmd.At, cmd.ActorID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return datamodel.NewNotFoundError("lot", cmd.LotID)
		}
		return nil
	})
}

// CloseLot marks the lot reviewed and calculates its snapshot in one transaction
func (c *Connection) CloseLot(ctx context.Context, cmd datamodel.ReviewCommand) (string, error) {
	var id string
	err := c.inTx(ctx, "close lot", func(ctx context.Context, tx pgx.Tx) error {
		if err := markLotReviewed(ctx, tx, cmd); err != nil {
			return err
		}
		var err error
		id, err = calculateSnapshot(ctx, tx, c.snapshotQuery, cmd.LotID)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ReopenLot invalidates the active snapshots and reverts the lot in one transaction
func (c *Connection) ReopenLot(ctx context.Context, cmd datamodel.ReopenCommand) (int64, error) {
	var n int64
	err := c.inTx(ctx, "reopen lot", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if n, err = invalidateSnapshots(ctx, tx, cmd); err != nil {
			return err
		}
		return revertLot(ctx, tx, cmd)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func calculateSnapshot(ctx context.Context, q querier, query string, lotID string) (string, error) {
	var id *string
	if err := q.QueryRow(ctx, query, lotID).Scan(&id); err != nil {
		return "", err
	}
	if id == nil || *id == "" {
		return "", errors.New("snapshot function returned no id")
	}
	return *id, nil
}

func markLotReviewed(ctx context.Context, e execer, cmd datamodel.ReviewCommand) error {
	tag, err := e.Exec(ctx, queryMarkLotReviewed, cmd.LotID, string(datamodel.LotCompleted), string(datamodel.ShiftClosed),
		cmd.SupervisorID, cmd.ReviewedAt, cmd.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datamodel.NewNotFoundError("lot", cmd.LotID)
	}
	return nil
}

func invalidateSnapshots(ctx context.Context, e execer, cmd datamodel.ReopenCommand) (int64, error) {
	tag, err := e.Exec(ctx, queryInvalidateSnapshots, cmd.LotID, string(datamodel.SnapshotInvalidated), cmd.At, cmd.SupervisorID,
		cmd.Reason, string(datamodel.SnapshotActive))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func revertLot(ctx context.Context, e execer, cmd datamodel.ReopenCommand) error {
	tag, err := e.Exec(ctx, queryRevertLot, cmd.LotID, string(datamodel.LotInProgress), string(datamodel.ShiftOpen), cmd.At, cmd.SupervisorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datamodel.NewNotFoundError("lot", cmd.LotID)
	}
	return nil
}
