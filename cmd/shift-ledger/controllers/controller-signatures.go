package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/helpers"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/models"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

func (ctl *Controller) GetSignaturesHandler(c *gin.Context) {
	var request models.OrderRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	signatures, err := ctl.Signatures.List(c.Request.Context(), request.OrderNumber)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.GetSignaturesResponse{
		OrderNumber: request.OrderNumber,
		Signatures:  signatures,
		Signed:      len(signatures) > 0,
	})
}

func (ctl *Controller) SignOrderHandler(c *gin.Context) {
	var request models.OrderRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	var body models.SignOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	signature, err := ctl.Signatures.Sign(c.Request.Context(), datamodel.Signature{
		OrderNumber:    request.OrderNumber,
		SupervisorID:   body.SupervisorID,
		SupervisorName: body.SupervisorName,
		Comment:        body.Comment,
	})
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, signature)
}

func (ctl *Controller) GetLatestSignatureHandler(c *gin.Context) {
	var request models.OrderRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	signature, err := ctl.Signatures.Latest(c.Request.Context(), request.OrderNumber)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, signature)
}

// PurgeSignatureHandler deletes a sign-off. Only meant for administrative corrections.
func (ctl *Controller) PurgeSignatureHandler(c *gin.Context) {
	var request models.SignatureIDRequest
	if err := c.ShouldBindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	zap.S().Warnf("User %s purges signature %s", helpers.ActorFromUser(c), helpers.SanitizeString(request.ID))
	if err := ctl.Signatures.Purge(c.Request.Context(), request.ID); err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) ListAllSignaturesHandler(c *gin.Context) {
	signatures, err := ctl.Signatures.ListAll(c.Request.Context())
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ListAllSignaturesResponse{Signatures: signatures})
}

func (ctl *Controller) ExportSignaturesHandler(c *gin.Context) {
	data, err := ctl.Signatures.ExportAll(c.Request.Context())
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ImportSignaturesHandler restores a signature backup, replacing every stored sign-off
func (ctl *Controller) ImportSignaturesHandler(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	zap.S().Warnf("User %s imports signatures", helpers.ActorFromUser(c))
	n, err := ctl.Signatures.ImportAll(c.Request.Context(), data)
	if err != nil {
		helpers.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ImportResponse{Imported: n})
}
