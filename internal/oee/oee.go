// Package oee computes Overall Equipment Effectiveness and talks to the backend function that persists snapshots.
package oee

import "math"

// Inputs are the rollups a single lot contributes to its OEE
type Inputs struct {
	PlannedMinutes    float64
	StopMinutes       float64
	IdealCycleSeconds float64
	TotalCount        float64
	ScrapCount        float64
}

// Result holds the three OEE factors and their product, each in [0, 1]
type Result struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
}

// CalculateAvailability is the share of planned time the line was not stopped
func CalculateAvailability(plannedMinutes, stopMinutes float64) float64 {
	// Preventing NaN
	if plannedMinutes <= 0 {
		return 0
	}
	return clamp((plannedMinutes - stopMinutes) / plannedMinutes)
}

// CalculatePerformance compares the ideal time for the produced pieces with the time the line ran.
// Without an ideal cycle time the line is assumed to run at full speed.
func CalculatePerformance(runMinutes, idealCycleSeconds, totalCount float64) float64 {
	if runMinutes <= 0 {
		return 0
	}
	if idealCycleSeconds <= 0 {
		return 1
	}
	return clamp(idealCycleSeconds * totalCount / 60 / runMinutes)
}

// CalculateQuality is the share of good pieces
func CalculateQuality(totalCount, scrapCount float64) float64 {
	// Preventing NaN
	if totalCount <= 0 {
		return 0
	}
	return clamp((totalCount - scrapCount) / totalCount)
}

// Calculate returns availability × performance × quality for in
func Calculate(in Inputs) Result {
	availability := CalculateAvailability(in.PlannedMinutes, in.StopMinutes)
	runMinutes := math.Max(in.PlannedMinutes-in.StopMinutes, 0)
	performance := CalculatePerformance(runMinutes, in.IdealCycleSeconds, in.TotalCount)
	quality := CalculateQuality(in.TotalCount, in.ScrapCount)
	return Result{
		Availability: availability,
		Performance:  performance,
		Quality:      quality,
		OEE:          availability * performance * quality,
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
