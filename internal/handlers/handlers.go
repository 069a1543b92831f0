package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleError provides a consistent way to handle and log errors
func handleError(c *gin.Context, log *zap.Logger, status int, message string, err error) {
	if err != nil {
		log.Error(message, zap.String("path", c.Request.URL.Path), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message})
}

// HomeHandler handles requests to the root path "/"
func HomeHandler(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to SickleCare!")
}

// HealthHandler is a simple health check endpoint
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
