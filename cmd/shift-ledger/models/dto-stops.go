package models

import "github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"

type GetStopsRequest struct {
	LotID          *string `form:"lot_id"`
	LineID         *int    `form:"line_id"`
	ShiftID        *int    `form:"shift_id"`
	Open           *bool   `form:"open"`
	IncludeDeleted bool    `form:"include_deleted"`
}

type StopIDRequest struct {
	ID string `uri:"id" binding:"required"`
}

type LotIDRequest struct {
	LotID string `uri:"lotId" binding:"required"`
}

type ActorRequest struct {
	ActorID int `form:"actor_id" binding:"required"`
}

type CreateStopRequest struct {
	LotID      *string `json:"lot_id"`
	EndTime    *string `json:"end_time"`
	ID         string  `json:"id"`
	StopDate   string  `json:"stop_date" binding:"required"`
	StartTime  string  `json:"start_time" binding:"required"`
	Note       string  `json:"note"`
	LineID     int     `json:"line_id" binding:"required"`
	ReasonID   int     `json:"reason_id" binding:"required"`
	ShiftID    int     `json:"shift_id"`
	OperatorID int     `json:"operator_id" binding:"required"`
}

// StopEvent converts the request into a stop the ledger assigns the audit fields of
func (r CreateStopRequest) StopEvent() datamodel.StopEvent {
	return datamodel.StopEvent{
		ID:         r.ID,
		LotID:      r.LotID,
		LineID:     r.LineID,
		ReasonID:   r.ReasonID,
		ShiftID:    r.ShiftID,
		OperatorID: r.OperatorID,
		StopDate:   r.StopDate,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Note:       r.Note,
	}
}

type CloseStopRequest struct {
	EndTime string `json:"end_time" binding:"required"`
	ActorID int    `json:"actor_id" binding:"required"`
}

type GetStopsResponse struct {
	Stops []datamodel.StopEvent `json:"stops"`
}

type ElapsedResponse struct {
	ID      string  `json:"id"`
	Minutes float64 `json:"minutes"`
}
