package server

import (
	"net/http"

	"github.com/smartscale/scale-server/internal/api"
	"github.com/smartscale/scale-server/internal/api/middleware"
	"github.com/smartscale/scale-server/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Liveness endpoint, no dependencies touched
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Not an API, just a simple file server endpoint
	s.ginEngine.GET("/file/:filename", handlerWrapper(app, api.GetFile))

	v1 := s.ginEngine.Group("/v1")

	v1.POST("/predict", handlerWrapper(app, api.SubmitPrediction))
	v1.GET("/result/:id", handlerWrapper(app, api.GetResult))
	v1.GET("/history", handlerWrapper(app, api.GetHistory))
	v1.GET("/health", handlerWrapper(app, api.GetHealth))
	v1.POST("/confirm/:id", handlerWrapper(app, api.ConfirmLabel))

	admin := v1.Group("/admin")
	admin.Use(handlerWrapper(app, middleware.AdminMiddleware))
	admin.POST("/reload-model", handlerWrapper(app, api.ReloadModel))
	admin.GET("/model", handlerWrapper(app, api.GetModelInfo))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
