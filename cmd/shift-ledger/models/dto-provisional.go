package models

import "github.com/united-manufacturing-hub/shift-ledger/internal/provisional"

type GetProvisionalStopsRequest struct {
	LotID          string `form:"lot_id"`
	IncludeDeleted bool   `form:"include_deleted"`
}

type GetProvisionalStopsResponse struct {
	Stops []provisional.ProvisionalStop `json:"stops"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
}
