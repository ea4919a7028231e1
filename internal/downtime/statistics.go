package downtime

import (
	"context"

	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReasonTotal is one bar of the stop pareto
type ReasonTotal struct {
	ReasonID int     `json:"reason_id"`
	Count    int     `json:"count"`
	Minutes  float64 `json:"minutes"`
}

// Statistics summarizes the stops of a lot. Soft deleted stops are not counted.
type Statistics struct {
	LotID          string        `json:"lot_id"`
	Pareto         []ReasonTotal `json:"pareto"`
	Count          int           `json:"count"`
	OpenCount      int           `json:"open_count"`
	TotalMinutes   float64       `json:"total_minutes"`
	MeanMinutes    float64       `json:"mean_minutes"`
	LongestMinutes float64       `json:"longest_minutes"`
}

// Statistics aggregates the closed stops of lotID
func (l *Ledger) Statistics(ctx context.Context, lotID string) (Statistics, error) {
	if lotID == "" {
		return Statistics{}, datamodel.NewValidationError("lot id is required")
	}
	stops, err := l.find(ctx, "list stops by lot", datamodel.StopFilter{LotID: &lotID})
	if err != nil {
		return Statistics{}, err
	}
	return computeStatistics(lotID, datamodel.ActiveStops(stops)), nil
}

func computeStatistics(lotID string, stops []datamodel.StopEvent) Statistics {
	s := Statistics{LotID: lotID, Count: len(stops), Pareto: []ReasonTotal{}}

	durations := make([]float64, 0, len(stops))
	byReason := make(map[int]*ReasonTotal)
	for _, stop := range stops {
		if stop.IsOpen() || stop.DurationMinutes == nil {
			s.OpenCount++
			continue
		}
		durations = append(durations, *stop.DurationMinutes)
		total, ok := byReason[stop.ReasonID]
		if !ok {
			total = &ReasonTotal{ReasonID: stop.ReasonID}
			byReason[stop.ReasonID] = total
		}
		total.Count++
		total.Minutes += *stop.DurationMinutes
	}
	if len(durations) > 0 {
		s.TotalMinutes = floats.Sum(durations)
		s.MeanMinutes = stat.Mean(durations, nil)
		s.LongestMinutes = floats.Max(durations)
	}

	for _, total := range byReason {
		s.Pareto = append(s.Pareto, *total)
	}
	slices.SortFunc(s.Pareto, func(a, b ReasonTotal) int {
		switch {
		case a.Minutes > b.Minutes:
			return -1
		case a.Minutes < b.Minutes:
			return 1
		}
		return a.ReasonID - b.ReasonID
	})
	return s
}
