package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/shift-ledger/cmd/shift-ledger/controllers"
	"go.uber.org/zap"
)

// SetupRouter builds the REST API. Everything below /api/v1 needs basic auth.
func SetupRouter(accounts gin.Accounts, ctl *controllers.Controller) *gin.Engine {
	router := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))

	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Healthcheck
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	v1 := router.Group("/api/v1", gin.BasicAuth(accounts))
	ctl.Register(v1)
	return router
}
