package api

import (
	"errors"
	"net/http"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfirmLabel records the cashier's ground-truth label on a finished
// job. Jobs that are not done yet cannot be confirmed.
func ConfirmLabel(c *gin.Context) {
	id := c.Param("id")
	jobID, err := uuid.Parse(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid job id"})
		return
	}

	var req types.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse json request body"})
		return
	}
	if req.ConfirmedLabel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "confirmed_label is required"})
		return
	}

	app := c.MustGet("app").(*app.App)

	if err := app.JobRepository.SetConfirmedLabel(c.Request.Context(), id, req.ConfirmedLabel); err != nil {
		switch {
		case errors.Is(err, scaleerr.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "job_id not found"})
		case errors.Is(err, scaleerr.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"message": "job is not done"})
		default:
			app.Logger.Error("failed to confirm label", zap.String("job_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to confirm label"})
		}
		return
	}

	if err := app.ResultCache().InvalidateResult(c.Request.Context(), jobID); err != nil {
		app.Logger.Warn("result cache invalidation failed", zap.String("job_id", id), zap.Error(err))
	}

	app.Logger.Info("label confirmed",
		zap.String("job_id", id),
		zap.String("confirmed_label", req.ConfirmedLabel))

	c.JSON(http.StatusOK, types.ConfirmResponse{
		Status:         "ok",
		JobID:          id,
		ConfirmedLabel: req.ConfirmedLabel,
	})
}
