package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/helpers"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/models"
	"go.uber.org/zap"
)

func (ctl *Controller) GetShiftsHandler(c *gin.Context) {
	var request models.GetShiftsRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	filter, err := request.Filter()
	if err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	shifts, err := ctl.Supervision.ListShiftsForDate(c.Request.Context(), filter)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.GetShiftsResponse{Shifts: shifts})
}

func (ctl *Controller) GetShiftSummaryHandler(c *gin.Context) {
	var request models.GetShiftSummaryRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	summary, err := ctl.Supervision.SummarizeByStatus(c.Request.Context(), request.Date)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (ctl *Controller) GetShiftHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	shift, err := ctl.Supervision.GetShift(c.Request.Context(), request.LotID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (ctl *Controller) GetShiftEventsHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	detail, err := ctl.Supervision.FetchEventDetail(c.Request.Context(), request.LotID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetOEEPreviewHandler returns a local estimate, the persisted snapshot is computed on close
func (ctl *Controller) GetOEEPreviewHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	preview, err := ctl.Supervision.PreviewOEE(c.Request.Context(), request.LotID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (ctl *Controller) StartShiftHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.TransitionShiftRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	shift, err := ctl.Supervision.StartShift(c.Request.Context(), request.LotID, body.ActorID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (ctl *Controller) CancelShiftHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.TransitionShiftRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	shift, err := ctl.Supervision.CancelShift(c.Request.Context(), request.LotID, body.ActorID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (ctl *Controller) CloseShiftHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.CloseShiftRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	zap.S().Infof("User %s closes lot %s", helpers.ActorFromUser(c), helpers.SanitizeString(request.LotID))
	result, err := ctl.Supervision.CloseShift(c.Request.Context(), request.LotID, body.SupervisorID, body.Notes)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ctl *Controller) ReopenShiftHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.ReopenShiftRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	zap.S().Infof("User %s reopens lot %s", helpers.ActorFromUser(c), helpers.SanitizeString(request.LotID))
	result, err := ctl.Supervision.ReopenShift(c.Request.Context(), request.LotID, body.SupervisorID, body.Reason)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecalculateSnapshotHandler finishes a close that stopped after the lot was marked reviewed
func (ctl *Controller) RecalculateSnapshotHandler(c *gin.Context) {
	var request models.LotIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	result, err := ctl.Supervision.RecalculateSnapshot(c.Request.Context(), request.LotID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
