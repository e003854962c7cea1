package handler

import (
	"github.com/gin-gonic/gin"

	"station-core/internal/handler/response"
)

// HealthCheck GET /health
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"version": "1.0.0",
		"service": "station-server",
	})
}
