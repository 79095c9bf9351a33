// Package intake wires the submission HTTP surface.
package intake

import (
	"github.com/gin-gonic/gin"

	"gradex/internal/intake/controller"
	"gradex/internal/intake/service"
)

// NewRouter builds the gin engine for the intake API.
func NewRouter(intakeService *service.IntakeService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	submissions := controller.NewSubmissionController(intakeService)

	api := router.Group("/api/v1")
	{
		api.POST("/submissions", submissions.Create)
		api.GET("/submissions/:id", submissions.GetStatus)
		api.POST("/submissions/:id/rejudge", submissions.Rejudge)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return router
}
