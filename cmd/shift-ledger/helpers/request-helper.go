package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/internal/supervision"
	"github.com/united-manufacturing-hub/shift-ledger/pkg/datamodel"
	"go.uber.org/zap"
)

func HandleInternalServerError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleInternalServerError: c is nil")
	}
	if err == nil {
		err = errors.New("unknown error")
	}

	erx := SanitizeString(err.Error())
	zap.S().Errorw(
		"Internal server error",
		"error", erx,
	)

	c.JSON(
		http.StatusInternalServerError,
		gin.H{
			"error":       erx,
			"status":      http.StatusInternalServerError,
			"message":     "The server had an internal error.",
			"stack-trace": string(debug.Stack()),
		})
}

func HandleTypeNotFound(c *gin.Context, t any) {
	if c == nil {
		panic("HandleTypeNotFound: c is nil")
	}

	zap.S().Debugw(
		"Type not found",
		"type", t,
	)
	route := c.FullPath()

	c.JSON(
		http.StatusNotFound,
		gin.H{
			"error":   fmt.Sprintf("Type %s not found", t),
			"status":  http.StatusNotFound,
			"message": fmt.Sprintf("The requested type %s was not found.", t),
			"route":   route,
		})
}

func HandleInvalidInputError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleInvalidInputError: c is nil")
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	erx := SanitizeString(err.Error())
	zap.S().Debugw(
		"Invalid input error",
		"error", erx,
	)

	c.JSON(
		http.StatusBadRequest,
		gin.H{
			"error":   erx,
			"status":  http.StatusBadRequest,
			"message": "You have provided a wrong input. Please check your parameters.",
		})
}

func HandleNotFound(c *gin.Context, err error) {
	erx := SanitizeString(err.Error())
	zap.S().Debugw(
		"Record not found",
		"error", erx,
		"route", c.FullPath(),
	)

	c.JSON(
		http.StatusNotFound,
		gin.H{
			"error":   erx,
			"status":  http.StatusNotFound,
			"message": "The requested record does not exist.",
		})
}

func HandleConflict(c *gin.Context, err error) {
	erx := SanitizeString(err.Error())
	zap.S().Infow(
		"Conflict",
		"error", erx,
		"route", c.FullPath(),
	)

	c.JSON(
		http.StatusConflict,
		gin.H{
			"error":   erx,
			"status":  http.StatusConflict,
			"message": "The operation is not allowed in the current state.",
		})
}

// HandleBackendError reports a failure of the database or the OEE function.
// The backend message is passed on unchanged, partial transitions also list their committed steps.
func HandleBackendError(c *gin.Context, err error) {
	erx := SanitizeString(err.Error())
	zap.S().Errorw(
		"Backend error",
		"error", erx,
		"route", c.FullPath(),
	)

	body := gin.H{
		"error":   erx,
		"status":  http.StatusBadGateway,
		"message": "The backend failed to complete the request.",
	}
	var stepErr *supervision.StepError
	if errors.As(err, &stepErr) {
		body["operation"] = stepErr.Operation
		body["failed_step"] = stepErr.Failed
		body["completed_steps"] = stepErr.Completed
	}
	c.JSON(http.StatusBadGateway, body)
}

// HandleError picks the response matching the kind of err
func HandleError(c *gin.Context, err error) {
	if c == nil {
		panic("HandleError: c is nil")
	}
	switch {
	case err == nil:
		HandleInternalServerError(c, nil)
	case errors.Is(err, datamodel.ErrValidation):
		HandleInvalidInputError(c, err)
	case errors.Is(err, datamodel.ErrNotFound):
		HandleNotFound(c, err)
	case errors.Is(err, datamodel.ErrConflict):
		HandleConflict(c, err)
	case datamodel.IsBackendError(err):
		HandleBackendError(c, err)
	default:
		HandleInternalServerError(c, err)
	}
}

// ActorFromUser returns the basic auth user of the request, for audit logs
func ActorFromUser(c *gin.Context) string {
	user, ok := c.Get(gin.AuthUserKey)
	if !ok {
		return ""
	}
	name, _ := user.(string)
	return SanitizeString(name)
}
