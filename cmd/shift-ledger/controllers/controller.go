package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/internal/downtime"
	"github.com/united-manufacturing-hub/shift-ledger/internal/provisional"
	"github.com/united-manufacturing-hub/shift-ledger/internal/supervision"
)

// Controller holds the components the handlers call into
type Controller struct {
	Ledger      *downtime.Ledger
	Supervision *supervision.Service
	Provisional *provisional.Stops
	Signatures  *provisional.SignatureBook
	Reconciler  *provisional.Reconciler
}

// Register adds every route to group. Shift routes need a supervision service.
func (ctl *Controller) Register(group *gin.RouterGroup) {
	stops := group.Group("/stops")
	{
		stops.GET("", ctl.GetStopsHandler)
		stops.POST("", ctl.CreateStopHandler)
		stops.GET("/:id", ctl.GetStopHandler)
		stops.PATCH("/:id", ctl.UpdateStopHandler)
		stops.POST("/:id/close", ctl.CloseStopHandler)
		stops.GET("/:id/elapsed", ctl.GetElapsedHandler)
		stops.DELETE("/:id", ctl.SoftDeleteStopHandler)
		stops.DELETE("/:id/purge", ctl.PurgeStopHandler)
	}
	group.GET("/lots/:lotId/stops/statistics", ctl.GetStopStatisticsHandler)

	if ctl.Supervision != nil {
		ctl.registerShifts(group.Group("/shifts"))
	}

	staged := group.Group("/provisional/stops")
	{
		staged.GET("", ctl.GetProvisionalStopsHandler)
		staged.POST("", ctl.CreateProvisionalStopHandler)
		staged.GET("/export", ctl.ExportProvisionalStopsHandler)
		staged.PUT("/import", ctl.ImportProvisionalStopsHandler)
		staged.POST("/flush", ctl.FlushProvisionalStopsHandler)
		staged.PATCH("/:id", ctl.UpdateProvisionalStopHandler)
		staged.DELETE("/:id", ctl.RemoveProvisionalStopHandler)
		staged.DELETE("/:id/purge", ctl.PurgeProvisionalStopHandler)
	}

	group.GET("/orders/:order/signatures", ctl.GetSignaturesHandler)
	group.POST("/orders/:order/signatures", ctl.SignOrderHandler)
	group.GET("/orders/:order/signatures/latest", ctl.GetLatestSignatureHandler)
	group.GET("/signatures", ctl.ListAllSignaturesHandler)
	group.GET("/signatures/export", ctl.ExportSignaturesHandler)
	group.PUT("/signatures/import", ctl.ImportSignaturesHandler)
	group.DELETE("/signatures/:id", ctl.PurgeSignatureHandler)
}

// registerShifts is skipped when no supervision backend is configured
func (ctl *Controller) registerShifts(shifts *gin.RouterGroup) {
	shifts.GET("", ctl.GetShiftsHandler)
	shifts.GET("/summary", ctl.GetShiftSummaryHandler)
	shifts.GET("/:lotId", ctl.GetShiftHandler)
	shifts.GET("/:lotId/events", ctl.GetShiftEventsHandler)
	shifts.GET("/:lotId/oee-preview", ctl.GetOEEPreviewHandler)
	shifts.POST("/:lotId/start", ctl.StartShiftHandler)
	shifts.POST("/:lotId/close", ctl.CloseShiftHandler)
	shifts.POST("/:lotId/reopen", ctl.ReopenShiftHandler)
	shifts.POST("/:lotId/cancel", ctl.CancelShiftHandler)
	shifts.POST("/:lotId/recalculate", ctl.RecalculateSnapshotHandler)
}
