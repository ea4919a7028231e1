package datamodel

import (
	"strings"
	"time"
)

// StopEvent is a downtime interval of a production line.
// EndTime == nil means the stop is still running, DurationMinutes is nil in that case.
type StopEvent struct {
	CreatedAt       time.Time  `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	LotID           *string    `json:"lot_id,omitempty"`
	EndTime         *string    `json:"end_time"`
	DurationMinutes *float64   `json:"duration_minutes"`
	SupervisorID    *int       `json:"supervisor_id,omitempty"`
	UpdatedBy       *int       `json:"updated_by,omitempty"`
	DeletedBy       *int       `json:"deleted_by,omitempty"`
	ID              string     `json:"id"`
	StopDate        string     `json:"stop_date"`
	StartTime       string     `json:"start_time"`
	Note            string     `json:"note"`
	LineID          int        `json:"line_id"`
	ReasonID        int        `json:"reason_id"`
	ShiftID         int        `json:"shift_id"`
	OperatorID      int        `json:"operator_id"`
	CreatedBy       int        `json:"created_by"`
}

// IsOpen reports whether the stop is still running
func (s StopEvent) IsOpen() bool {
	return s.EndTime == nil
}

// IsDeleted reports whether the stop was soft deleted
func (s StopEvent) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Validate checks the fields required to create a stop
func (s StopEvent) Validate() error {
	if s.LineID <= 0 {
		return NewValidationError("line_id must be positive")
	}
	if s.ReasonID <= 0 {
		return NewValidationError("reason_id must be positive")
	}
	if s.OperatorID <= 0 {
		return NewValidationError("operator_id must be positive")
	}
	if _, err := ParseDate(s.StopDate); err != nil {
		return err
	}
	if strings.TrimSpace(s.StartTime) == "" {
		return NewValidationError("start_time is required")
	}
	if _, err := ParseClock(s.StartTime); err != nil {
		return err
	}
	if s.EndTime != nil {
		if _, err := ParseClock(*s.EndTime); err != nil {
			return err
		}
	}
	if s.LotID != nil && strings.TrimSpace(*s.LotID) == "" {
		return NewValidationError("lot_id must not be blank")
	}
	return nil
}

// RecomputeDuration derives DurationMinutes from StartTime and EndTime
func (s *StopEvent) RecomputeDuration() error {
	if s.EndTime == nil {
		s.DurationMinutes = nil
		return nil
	}
	d, err := DurationMinutes(s.StartTime, *s.EndTime)
	if err != nil {
		return err
	}
	s.DurationMinutes = &d
	return nil
}

// StopPatch lists the fields of a StopEvent that may change after creation
type StopPatch struct {
	ReasonID     *int    `json:"reason_id,omitempty"`
	LotID        *string `json:"lot_id,omitempty"`
	StartTime    *string `json:"start_time,omitempty"`
	EndTime      *string `json:"end_time,omitempty"`
	Note         *string `json:"note,omitempty"`
	SupervisorID *int    `json:"supervisor_id,omitempty"`
	UpdatedBy    *int    `json:"updated_by,omitempty"`
}

// Validate checks every field set in the patch
func (p StopPatch) Validate() error {
	if p.ReasonID != nil && *p.ReasonID <= 0 {
		return NewValidationError("reason_id must be positive")
	}
	if p.LotID != nil && strings.TrimSpace(*p.LotID) == "" {
		return NewValidationError("lot_id must not be blank")
	}
	if p.StartTime != nil {
		if _, err := ParseClock(*p.StartTime); err != nil {
			return err
		}
	}
	if p.EndTime != nil {
		if _, err := ParseClock(*p.EndTime); err != nil {
			return err
		}
	}
	if p.SupervisorID != nil && *p.SupervisorID <= 0 {
		return NewValidationError("supervisor_id must be positive")
	}
	if p.UpdatedBy != nil && *p.UpdatedBy <= 0 {
		return NewValidationError("updated_by must be positive")
	}
	return nil
}

// Apply validates the patch and merges it into stop.
// The duration is recomputed from the merged start and end, and UpdatedAt is stamped with now.
// stop is left untouched when an error is returned.
func (p StopPatch) Apply(stop *StopEvent, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	merged := *stop
	if p.ReasonID != nil {
		merged.ReasonID = *p.ReasonID
	}
	if p.LotID != nil {
		lot := *p.LotID
		merged.LotID = &lot
	}
	if p.StartTime != nil {
		merged.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		end := *p.EndTime
		merged.EndTime = &end
	}
	if p.Note != nil {
		merged.Note = *p.Note
	}
	if p.SupervisorID != nil {
		supervisor := *p.SupervisorID
		reviewedAt := now
		merged.SupervisorID = &supervisor
		merged.ReviewedAt = &reviewedAt
	}
	if p.UpdatedBy != nil {
		actor := *p.UpdatedBy
		merged.UpdatedBy = &actor
	}
	if merged.StartTime != "" {
		if err := merged.RecomputeDuration(); err != nil {
			return err
		}
	}
	updatedAt := now
	merged.UpdatedAt = &updatedAt
	*stop = merged
	return nil
}

// StopFilter selects stops by equality on the set fields
type StopFilter struct {
	LotID   *string
	LineID  *int
	ShiftID *int
	Open    *bool
}

// Matches reports whether stop satisfies every set field of the filter
func (f StopFilter) Matches(stop StopEvent) bool {
	if f.LotID != nil && (stop.LotID == nil || *stop.LotID != *f.LotID) {
		return false
	}
	if f.LineID != nil && stop.LineID != *f.LineID {
		return false
	}
	if f.ShiftID != nil && stop.ShiftID != *f.ShiftID {
		return false
	}
	if f.Open != nil && stop.IsOpen() != *f.Open {
		return false
	}
	return true
}

// ActiveStops drops soft deleted stops. List operations never do this on their own.
func ActiveStops(stops []StopEvent) []StopEvent {
	active := make([]StopEvent, 0, len(stops))
	for _, stop := range stops {
		if !stop.IsDeleted() {
			active = append(active, stop)
		}
	}
	return active
}

// StopReason is one node of the stop reason hierarchy with its labels resolved
type StopReason struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Group    string `json:"group"`
	ID       int    `json:"id"`
}
