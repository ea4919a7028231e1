package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/helpers"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/models"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"golang.org/x/exp/slices"
)

// GetStopsHandler lists the stops of a lot, a line or a shift.
// Soft deleted stops are left out unless include_deleted is set.
func (ctl *Controller) GetStopsHandler(c *gin.Context) {
	var request models.GetStopsRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	var stops []datamodel.StopEvent
	var err error
	ctx := c.Request.Context()
	switch {
	case request.LotID != nil && request.Open != nil && *request.Open:
		stops, err = ctl.Ledger.ListOpenStops(ctx, *request.LotID)
	case request.LotID != nil && request.Open != nil:
		stops, err = ctl.Ledger.ListClosedStops(ctx, *request.LotID)
	case request.LotID != nil:
		var closed []datamodel.StopEvent
		if stops, err = ctl.Ledger.ListOpenStops(ctx, *request.LotID); err == nil {
			closed, err = ctl.Ledger.ListClosedStops(ctx, *request.LotID)
			stops = append(stops, closed...)
		}
	case request.LineID != nil:
		stops, err = ctl.Ledger.ListByLine(ctx, *request.LineID)
	case request.ShiftID != nil:
		stops, err = ctl.Ledger.ListByShift(ctx, *request.ShiftID)
	default:
		err = datamodel.NewValidationError("one of lot_id, line_id or shift_id is required")
	}
	if err != nil {
		helpers.HandleError(c, err)
		return
	}

	filter := datamodel.StopFilter{LotID: request.LotID, LineID: request.LineID, ShiftID: request.ShiftID, Open: request.Open}
	stops = slices.DeleteFunc(stops, func(stop datamodel.StopEvent) bool {
		return !filter.Matches(stop)
	})
	if !request.IncludeDeleted {
		stops = datamodel.ActiveStops(stops)
	}
	slices.SortStableFunc(stops, func(a, b datamodel.StopEvent) int {
		return datamodel.CompareEventTime(a.StopDate, a.StartTime, b.StopDate, b.StartTime)
	})
	if stops == nil {
		stops = make([]datamodel.StopEvent, 0)
	}

	c.JSON(http.StatusOK, models.GetStopsResponse{Stops: stops})
}

func (ctl *Controller) CreateStopHandler(c *gin.Context) {
	var request models.CreateStopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Ledger.Create(c.Request.Context(), request.StopEvent())
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stop)
}

func (ctl *Controller) GetStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Ledger.Get(c.Request.Context(), request.ID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (ctl *Controller) UpdateStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var patch datamodel.StopPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Ledger.Update(c.Request.Context(), request.ID, patch)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (ctl *Controller) CloseStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.CloseStopRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Ledger.Close(c.Request.Context(), request.ID, body.EndTime, body.ActorID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (ctl *Controller) GetElapsedHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	minutes, err := ctl.Ledger.Elapsed(c.Request.Context(), request.ID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ElapsedResponse{ID: request.ID, Minutes: minutes})
}

// SoftDeleteStopHandler stamps the deletion, the stop stays in storage
func (ctl *Controller) SoftDeleteStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var actor models.ActorRequest
	if err := c.ShouldBindQuery(&actor); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Ledger.SoftDelete(c.Request.Context(), request.ID, actor.ActorID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

// PurgeStopHandler removes a mis-entered stop for good
func (ctl *Controller) PurgeStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	if err := ctl.Ledger.HardDelete(c.Request.Context(), request.ID); err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) GetStopStatisticsHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stats, err := ctl.Ledger.Statistics(c.Request.Context(), request.LotID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
