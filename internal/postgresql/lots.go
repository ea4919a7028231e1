package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

// lot_shift_summary is a view joining lot, shift and line with the per lot event aggregates
const lotColumns = `lot_id, shift_id, shift_code, shift_start::text, shift_end::text, lot_date::text, line_id, line_name, department_id,
	lot_status, coalesce(shift_status, ''), stop_count, stop_minutes, open_stop_count, production_count, controller_quantity, manual_quantity,
	quality_count, scrap_quantity, rework_minutes, ideal_cycle_seconds, oee_calculated, reviewed_by, reviewed_at, review_notes`

const (
	queryGetLot = `SELECT ` + lotColumns + ` FROM lot_shift_summary WHERE lot_id = $1`

	// the shift status filter is applied by the caller, rows without a shift status derive it from the lot status
	queryListLots = `SELECT ` + lotColumns + ` FROM lot_shift_summary
	WHERE lot_date = $1::date
	AND ($2::int IS NULL OR line_id = $2)
	AND ($3::int IS NULL OR department_id = $3)
	ORDER BY line_id, shift_code`

	queryLotStops = `SELECT ` + stopColumns + `, coalesce((SELECT o.name FROM operator o WHERE o.id = stop_event.operator_id), '')
	FROM stop_event
	WHERE lot_id = $1 AND deleted_at IS NULL
	ORDER BY stop_date, start_time`

	queryLotProduction = `SELECT p.id, p.lot_id, p.entry_date::text, p.entry_time::text, p.source, coalesce(o.name, ''), p.quantity, p.operator_id
	FROM production_entry p
	LEFT JOIN operator o ON o.id = p.operator_id
	WHERE p.lot_id = $1
	ORDER BY p.entry_date, p.entry_time`

	queryLotQuality = `SELECT q.reason_id, q.id, q.lot_id, q.entry_date::text, q.entry_time::text, q.kind, coalesce(r.label, ''), coalesce(o.name, ''),
	q.quantity, q.rework_minutes, q.operator_id
	FROM quality_entry q
	LEFT JOIN operator o ON o.id = q.operator_id
	LEFT JOIN quality_reason r ON r.id = q.reason_id
	WHERE q.lot_id = $1
	ORDER BY q.entry_date, q.entry_time`

	queryStopReason = `SELECT r.id, r.code, r.label, coalesce(c.label, ''), coalesce(g.label, '')
	FROM stop_reason r
	LEFT JOIN stop_reason_category c ON c.id = r.category_id
	LEFT JOIN stop_reason_group g ON g.id = c.group_id
	WHERE r.id = $1`
)

func (c *Connection) GetLot(ctx context.Context, lotID string) (datamodel.LotSummary, error) {
	var lot datamodel.LotSummary
	err := c.read(ctx, "get lot", func(ctx context.Context) error {
		var err error
		lot, err = scanLot(c.db.QueryRow(ctx, queryGetLot, lotID))
		if errors.Is(err, pgx.ErrNoRows) {
			return datamodel.NewNotFoundError("lot", lotID)
		}
		return err
	})
	return lot, err
}

func (c *Connection) ListLots(ctx context.Context, filter datamodel.ShiftFilter) ([]datamodel.LotSummary, error) {
	var lots []datamodel.LotSummary
	err := c.read(ctx, "list lots", func(ctx context.Context) error {
		rows, err := c.db.Query(ctx, queryListLots, filter.Date, filter.LineID, filter.DepartmentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		lots = make([]datamodel.LotSummary, 0)
		for rows.Next() {
			lot, err := scanLot(rows)
			if err != nil {
				return err
			}
			lots = append(lots, lot)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

func scanLot(row pgx.Row) (datamodel.LotSummary, error) {
	var lot datamodel.LotSummary
	var lotStatus, shiftStatus string
	err := row.Scan(&lot.LotID, &lot.ShiftID, &lot.ShiftCode, &lot.ShiftStart, &lot.ShiftEnd, &lot.Date, &lot.LineID, &lot.LineName, &lot.DepartmentID,
		&lotStatus, &shiftStatus, &lot.StopCount, &lot.StopMinutes, &lot.OpenStopCount, &lot.ProductionCount, &lot.ControllerQuantity, &lot.ManualQuantity,
		&lot.QualityCount, &lot.ScrapQuantity, &lot.ReworkMinutes, &lot.IdealCycleSeconds, &lot.OEECalculated, &lot.ReviewedBy, &lot.ReviewedAt, &lot.ReviewNotes)
	if err != nil {
		return datamodel.LotSummary{}, err
	}
	lot.LotStatus = datamodel.LotStatus(lotStatus)
	lot.ShiftStatus = datamodel.ShiftStatus(shiftStatus)
	return lot, nil
}

// FetchEventDetail loads the three event collections of a lot. Stop reasons are resolved through the reason cache.
func (c *Connection) FetchEventDetail(ctx context.Context, lotID string) (datamodel.EventDetail, error) {
	detail := datamodel.EventDetail{LotID: lotID}
	err := c.read(ctx, "fetch event detail", func(ctx context.Context) error {
		var err error
		if detail.Stops, err = c.lotStops(ctx, lotID); err != nil {
			return err
		}
		if detail.Production, err = c.lotProduction(ctx, lotID); err != nil {
			return err
		}
		detail.Quality, err = c.lotQuality(ctx, lotID)
		return err
	})
	if err != nil {
		return datamodel.EventDetail{LotID: lotID}, err
	}
	for i := range detail.Stops {
		reason, err := c.GetStopReason(ctx, detail.Stops[i].ReasonID)
		if err != nil {
			zap.S().Warnf("Unable to resolve stop reason %d: %s", detail.Stops[i].ReasonID, err)
			continue
		}
		detail.Stops[i].ReasonCode = reason.Code
		detail.Stops[i].ReasonLabel = reason.Label
		detail.Stops[i].ReasonCategory = reason.Category
		detail.Stops[i].ReasonGroup = reason.Group
	}
	return detail, nil
}

func (c *Connection) lotStops(ctx context.Context, lotID string) ([]datamodel.StopDetail, error) {
	rows, err := c.db.Query(ctx, queryLotStops, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stops := make([]datamodel.StopDetail, 0)
	for rows.Next() {
		var s datamodel.StopDetail
		var note *string
		err = rows.Scan(&s.ID, &s.LineID, &s.LotID, &s.ReasonID, &s.ShiftID, &s.StopDate, &s.StartTime, &s.EndTime, &s.DurationMinutes,
			&s.OperatorID, &s.SupervisorID, &s.ReviewedAt, &note, &s.CreatedAt, &s.CreatedBy, &s.UpdatedAt, &s.UpdatedBy, &s.DeletedAt, &s.DeletedBy,
			&s.OperatorName)
		if err != nil {
			return nil, err
		}
		if note != nil {
			s.Note = *note
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func (c *Connection) lotProduction(ctx context.Context, lotID string) ([]datamodel.ProductionEntry, error) {
	rows, err := c.db.Query(ctx, queryLotProduction, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]datamodel.ProductionEntry, 0)
	for rows.Next() {
		var e datamodel.ProductionEntry
		var source string
		if err = rows.Scan(&e.ID, &e.LotID, &e.EntryDate, &e.EntryTime, &source, &e.OperatorName, &e.Quantity, &e.OperatorID); err != nil {
			return nil, err
		}
		e.Source = datamodel.ProductionSource(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *Connection) lotQuality(ctx context.Context, lotID string) ([]datamodel.QualityEntry, error) {
	rows, err := c.db.Query(ctx, queryLotQuality, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]datamodel.QualityEntry, 0)
	for rows.Next() {
		var e datamodel.QualityEntry
		var kind string
		err = rows.Scan(&e.ReasonID, &e.ID, &e.LotID, &e.EntryDate, &e.EntryTime, &kind, &e.ReasonLabel, &e.OperatorName,
			&e.Quantity, &e.ReworkMinutes, &e.OperatorID)
		if err != nil {
			return nil, err
		}
		e.Kind = datamodel.QualityLossKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetStopReason returns the reason with its category and group labels.
// Resolved reasons are kept in the ARC cache.
func (c *Connection) GetStopReason(ctx context.Context, id int) (datamodel.StopReason, error) {
	if cached, ok := c.reasons.Get(id); ok {
		if reason, ok := cached.(datamodel.StopReason); ok {
			return reason, nil
		}
	}
	var reason datamodel.StopReason
	err := c.read(ctx, "get stop reason", func(ctx context.Context) error {
		err := c.db.QueryRow(ctx, queryStopReason, id).Scan(&reason.ID, &reason.Code, &reason.Label, &reason.Category, &reason.Group)
		if errors.Is(err, pgx.ErrNoRows) {
			return datamodel.NewNotFoundError("stop reason", fmt.Sprint(id))
		}
		return err
	})
	if err != nil {
		return datamodel.StopReason{}, err
	}
	c.reasons.Add(id, reason)
	return reason, nil
}
