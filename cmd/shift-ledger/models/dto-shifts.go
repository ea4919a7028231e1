package models

import "github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"

type GetShiftsRequest struct {
	LineID       *int   `form:"line_id"`
	DepartmentID *int   `form:"department_id"`
	Date         string `form:"date" binding:"required"`
	Status       string `form:"status"`
}

// Filter validates the status and builds the listing filter
func (r GetShiftsRequest) Filter() (datamodel.ShiftFilter, error) {
	filter := datamodel.ShiftFilter{
		Date:         r.Date,
		LineID:       r.LineID,
		DepartmentID: r.DepartmentID,
	}
	if r.Status != "" {
		status, err := datamodel.ParseShiftStatus(r.Status)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	return filter, filter.Validate()
}

type GetShiftSummaryRequest struct {
	Date string `form:"date" binding:"required"`
}

type GetShiftsResponse struct {
	Shifts []datamodel.LotSummary `json:"shifts"`
}

type CloseShiftRequest struct {
	Notes        *string `json:"notes"`
	SupervisorID int     `json:"supervisor_id" binding:"required"`
}

type ReopenShiftRequest struct {
	Reason       string `json:"reason" binding:"required"`
	SupervisorID int    `json:"supervisor_id" binding:"required"`
}

type TransitionShiftRequest struct {
	ActorID int `json:"actor_id" binding:"required"`
}
