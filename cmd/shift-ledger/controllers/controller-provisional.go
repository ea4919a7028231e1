package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/helpers"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/models"
	"github.com/united-manufacturing-hub/shift-ledger/internal/provisional"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"golang.org/x/exp/slices"
)

func (ctl *Controller) GetProvisionalStopsHandler(c *gin.Context) {
	var request models.GetProvisionalStopsRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	var stops []provisional.ProvisionalStop
	var err error
	if request.LotID != "" {
		stops, err = ctl.Provisional.ListByLot(c.Request.Context(), request.LotID)
	} else {
		stops, err = ctl.Provisional.ListAll(c.Request.Context())
	}
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	if !request.IncludeDeleted {
		stops = slices.DeleteFunc(stops, func(p provisional.ProvisionalStop) bool {
			return p.IsDeleted()
		})
	}
	if stops == nil {
		stops = make([]provisional.ProvisionalStop, 0)
	}
	c.JSON(http.StatusOK, models.GetProvisionalStopsResponse{Stops: stops})
}

func (ctl *Controller) CreateProvisionalStopHandler(c *gin.Context) {
	var request models.CreateStopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	stop, err := ctl.Provisional.Create(c.Request.Context(), request.StopEvent())
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stop)
}

func (ctl *Controller) UpdateProvisionalStopHandler(c *gin.Context) {
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

	stop, err := ctl.Provisional.Update(c.Request.Context(), request.ID, patch)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (ctl *Controller) RemoveProvisionalStopHandler(c *gin.Context) {
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

	stop, err := ctl.Provisional.Remove(c.Request.Context(), request.ID, actor.ActorID)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (ctl *Controller) PurgeProvisionalStopHandler(c *gin.Context) {
	var request models.StopIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	if err := ctl.Provisional.Purge(c.Request.Context(), request.ID); err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportProvisionalStopsHandler returns the stored list as is, ready to be imported elsewhere
func (ctl *Controller) ExportProvisionalStopsHandler(c *gin.Context) {
	data, err := ctl.Provisional.ExportAll(c.Request.Context())
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ImportProvisionalStopsHandler replaces every staged stop with the body
func (ctl *Controller) ImportProvisionalStopsHandler(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	n, err := ctl.Provisional.ImportAll(c.Request.Context(), data)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ImportResponse{Imported: n})
}

// FlushProvisionalStopsHandler pushes pending stops into the ledger.
// Per record failures are part of the report, only a flush that could not run is an error response.
func (ctl *Controller) FlushProvisionalStopsHandler(c *gin.Context) {
	report, err := ctl.Reconciler.Flush(c.Request.Context())
	if err != nil && len(report.Failures) == 0 {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
