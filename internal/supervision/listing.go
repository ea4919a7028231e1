package supervision

import (
	"cmp"
	"context"
	"strings"

	"github.com/united-manufacturing-hub/shift-ledger/internal"
	"github.com/united-manufacturing-hub/shift-ledger/internal/oee"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// ListShiftsForDate returns the rollups matching filter ordered by line id, then shift code
func (s *Service) ListShiftsForDate(ctx context.Context, filter datamodel.ShiftFilter) ([]datamodel.LotSummary, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	key, err := internal.CacheKey("shifts", filter)
	if err != nil {
		zap.S().Warnf("Unable to build cache key for %+v: %s", filter, err)
	} else if cached, ok := s.cache.Get(key); ok {
		if lots, ok := cached.([]datamodel.LotSummary); ok {
			return slices.Clone(lots), nil
		}
	}

	generation := s.cache.Generation()
	lots, err := s.backend.ListLots(ctx, filter)
	if err != nil {
		return nil, backendError("list lots", err)
	}
	if filter.Status != nil {
		lots = slices.DeleteFunc(lots, func(lot datamodel.LotSummary) bool {
			return lot.EffectiveShiftStatus() != *filter.Status
		})
	}
	slices.SortStableFunc(lots, compareLots)

	if key != "" {
		s.cache.SetAt(generation, key, slices.Clone(lots))
	}
	return lots, nil
}

func compareLots(a, b datamodel.LotSummary) int {
	if c := cmp.Compare(a.LineID, b.LineID); c != 0 {
		return c
	}
	return strings.Compare(a.ShiftCode, b.ShiftCode)
}

// SummarizeByStatus counts the shifts of date per status. Every status is present, zero or not.
func (s *Service) SummarizeByStatus(ctx context.Context, date string) (datamodel.StatusSummary, error) {
	lots, err := s.ListShiftsForDate(ctx, datamodel.ShiftFilter{Date: date})
	if err != nil {
		return datamodel.StatusSummary{}, err
	}
	summary := datamodel.StatusSummary{
		Date:   date,
		Counts: make(map[datamodel.ShiftStatus]int, len(datamodel.ShiftStatuses())),
		Total:  len(lots),
	}
	for _, status := range datamodel.ShiftStatuses() {
		summary.Counts[status] = 0
	}
	for _, lot := range lots {
		summary.Counts[lot.EffectiveShiftStatus()]++
	}
	return summary, nil
}

// FetchEventDetail returns the stops, production and quality entries of a lot, each ordered by date and time
func (s *Service) FetchEventDetail(ctx context.Context, lotID string) (datamodel.EventDetail, error) {
	if lotID == "" {
		return datamodel.EventDetail{}, datamodel.NewValidationError("lot id is required")
	}
	detail, err := s.backend.FetchEventDetail(ctx, lotID)
	if err != nil {
		return datamodel.EventDetail{}, backendError("fetch event detail", err)
	}
	detail.LotID = lotID

	slices.SortStableFunc(detail.Stops, func(a, b datamodel.StopDetail) int {
		return datamodel.CompareEventTime(a.StopDate, a.StartTime, b.StopDate, b.StartTime)
	})
	slices.SortStableFunc(detail.Production, func(a, b datamodel.ProductionEntry) int {
		return datamodel.CompareEventTime(a.EntryDate, a.EntryTime, b.EntryDate, b.EntryTime)
	})
	slices.SortStableFunc(detail.Quality, func(a, b datamodel.QualityEntry) int {
		return datamodel.CompareEventTime(a.EntryDate, a.EntryTime, b.EntryDate, b.EntryTime)
	})
	return detail, nil
}

// PreviewOEE estimates the OEE of a lot from its rollups. Nothing is persisted.
// Planned time is the shift window, crossing midnight when the shift ends before it starts.
func (s *Service) PreviewOEE(ctx context.Context, lotID string) (oee.Result, error) {
	lot, err := s.GetShift(ctx, lotID)
	if err != nil {
		return oee.Result{}, err
	}
	if lot.ShiftStart == "" || lot.ShiftEnd == "" {
		return oee.Result{}, datamodel.NewValidationError("lot %s has no shift window", lotID)
	}
	planned, err := datamodel.DurationMinutes(lot.ShiftStart, lot.ShiftEnd)
	if err != nil {
		return oee.Result{}, err
	}
	return oee.Calculate(oee.Inputs{
		PlannedMinutes:    planned,
		StopMinutes:       lot.StopMinutes,
		IdealCycleSeconds: lot.IdealCycleSeconds,
		TotalCount:        lot.TotalQuantity(),
		ScrapCount:        lot.ScrapQuantity,
	}), nil
}
