package datamodel

import "time"

// LotSummary is the denormalized per lot and shift rollup shown to supervisors
type LotSummary struct {
	ReviewedAt         *time.Time  `json:"reviewed_at,omitempty"`
	DepartmentID       *int        `json:"department_id,omitempty"`
	ReviewedBy         *int        `json:"reviewed_by,omitempty"`
	ReviewNotes        *string     `json:"review_notes,omitempty"`
	LotID              string      `json:"lot_id"`
	ShiftCode          string      `json:"shift_code"`
	ShiftStart         string      `json:"shift_start"`
	ShiftEnd           string      `json:"shift_end"`
	Date               string      `json:"date"`
	LineName           string      `json:"line_name"`
	LotStatus          LotStatus   `json:"lot_status"`
	ShiftStatus        ShiftStatus `json:"shift_status"`
	StopMinutes        float64     `json:"stop_minutes"`
	ControllerQuantity float64     `json:"controller_quantity"`
	ManualQuantity     float64     `json:"manual_quantity"`
	ScrapQuantity      float64     `json:"scrap_quantity"`
	ReworkMinutes      float64     `json:"rework_minutes"`
	IdealCycleSeconds  float64     `json:"ideal_cycle_seconds"`
	ShiftID            int         `json:"shift_id"`
	LineID             int         `json:"line_id"`
	StopCount          int         `json:"stop_count"`
	OpenStopCount      int         `json:"open_stop_count"`
	ProductionCount    int         `json:"production_count"`
	QualityCount       int         `json:"quality_count"`
	OEECalculated      bool        `json:"oee_calculated"`
}

// EffectiveShiftStatus returns the shift status, derived from the lot status when the row has none
func (l LotSummary) EffectiveShiftStatus() ShiftStatus {
	if l.ShiftStatus != "" {
		return l.ShiftStatus
	}
	return l.LotStatus.ShiftStatus()
}

// TotalQuantity is the produced quantity from both the controller and manual entries
func (l LotSummary) TotalQuantity() float64 {
	return l.ControllerQuantity + l.ManualQuantity
}

// ShiftFilter selects shift rollups of one calendar date
type ShiftFilter struct {
	LineID       *int         `json:"line_id,omitempty"`
	DepartmentID *int         `json:"department_id,omitempty"`
	Status       *ShiftStatus `json:"status,omitempty"`
	Date         string       `json:"date"`
}

// Validate requires a well formed date
func (f ShiftFilter) Validate() error {
	if f.Date == "" {
		return NewValidationError("date is required")
	}
	_, err := ParseDate(f.Date)
	return err
}

// ProductionSource tells whether a production entry came from the line controller or was typed in
type ProductionSource string

const (
	ProductionFromController ProductionSource = "CONTROLLER"
	ProductionManual         ProductionSource = "MANUAL"
)

// QualityLossKind distinguishes scrap from rework
type QualityLossKind string

const (
	QualityScrap  QualityLossKind = "SCRAP"
	QualityRework QualityLossKind = "REWORK"
)

// StopDetail is a stop with the labels of its operator and reason hierarchy
type StopDetail struct {
	StopEvent
	OperatorName   string `json:"operator_name"`
	ReasonCode     string `json:"reason_code"`
	ReasonLabel    string `json:"reason_label"`
	ReasonCategory string `json:"reason_category"`
	ReasonGroup    string `json:"reason_group"`
}

// ProductionEntry is a quantity produced for a lot
type ProductionEntry struct {
	ID           string           `json:"id"`
	LotID        string           `json:"lot_id"`
	EntryDate    string           `json:"entry_date"`
	EntryTime    string           `json:"entry_time"`
	Source       ProductionSource `json:"source"`
	OperatorName string           `json:"operator_name"`
	Quantity     float64          `json:"quantity"`
	OperatorID   int              `json:"operator_id"`
}

// QualityEntry is a quality loss recorded for a lot
type QualityEntry struct {
	ReasonID      *int            `json:"reason_id,omitempty"`
	ID            string          `json:"id"`
	LotID         string          `json:"lot_id"`
	EntryDate     string          `json:"entry_date"`
	EntryTime     string          `json:"entry_time"`
	Kind          QualityLossKind `json:"kind"`
	ReasonLabel   string          `json:"reason_label"`
	OperatorName  string          `json:"operator_name"`
	Quantity      float64         `json:"quantity"`
	ReworkMinutes float64         `json:"rework_minutes"`
	OperatorID    int             `json:"operator_id"`
}

// EventDetail holds the three event collections of a lot, each ordered by event date and time
type EventDetail struct {
	LotID      string            `json:"lot_id"`
	Stops      []StopDetail      `json:"stops"`
	Production []ProductionEntry `json:"production"`
	Quality    []QualityEntry    `json:"quality"`
}

// OEESnapshot is a persisted OEE result of a lot
type OEESnapshot struct {
	CalculatedAt       time.Time      `json:"calculated_at"`
	InvalidatedAt      *time.Time     `json:"invalidated_at,omitempty"`
	InvalidatedBy      *int           `json:"invalidated_by,omitempty"`
	InvalidationReason *string        `json:"invalidation_reason,omitempty"`
	ID                 string         `json:"id"`
	LotID              string         `json:"lot_id"`
	Status             SnapshotStatus `json:"status"`
	Availability       float64        `json:"availability"`
	Performance        float64        `json:"performance"`
	Quality            float64        `json:"quality"`
	OEE                float64        `json:"oee"`
}

// ReviewCommand marks a lot COMPLETED and its shift CLOSED
type ReviewCommand struct {
	ReviewedAt   time.Time
	Notes        *string
	LotID        string
	SupervisorID int
}

// ReopenCommand invalidates the active snapshot of a lot and reverts it to IN_PROGRESS
type ReopenCommand struct {
	At           time.Time
	LotID        string
	Reason       string
	SupervisorID int
}

// TransitionCommand moves a lot to a shift status that needs no review data
type TransitionCommand struct {
	At      time.Time
	LotID   string
	To      ShiftStatus
	ActorID int
}

// StatusSummary counts the shifts of a date per status
type StatusSummary struct {
	Counts map[ShiftStatus]int `json:"counts"`
	Date   string              `json:"date"`
	Total  int                 `json:"total"`
}
