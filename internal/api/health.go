package api

import (
	"net/http"
	"time"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/types"

	"github.com/gin-gonic/gin"
)

// GetHealth reports readiness of the wired dependencies. The endpoint
// itself always answers 200; degraded components show up in the body.
func GetHealth(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	ctx := c.Request.Context()

	status := "ok"
	components := map[string]string{}

	if db := app.DB(); db != nil {
		if err := db.PingContext(ctx); err != nil {
			components["db"] = err.Error()
			status = "degraded"
		} else {
			components["db"] = "ok"
		}
	}

	if rc := app.ResultCache(); rc != nil {
		if err := rc.Ping(ctx); err != nil {
			components["result_cache"] = err.Error()
			status = "degraded"
		} else {
			components["result_cache"] = "ok"
		}
	}

	if rt := app.Runtime(); rt != nil {
		if err := rt.Ping(ctx); err != nil {
			components["model_runtime"] = err.Error()
			status = "degraded"
		} else {
			components["model_runtime"] = "ok"
		}
	}

	c.JSON(http.StatusOK, types.HealthResponse{
		Status:     status,
		Time:       float64(time.Now().UnixMilli()) / 1000.0,
		Components: components,
	})
}
