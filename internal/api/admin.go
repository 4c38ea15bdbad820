package api

import (
	"errors"
	"net/http"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReloadModel points the registry at a new classifier identity. Workers
// pick the change up on their next cache check; nothing is loaded here.
func ReloadModel(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	var req types.ReloadModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse json request body"})
		return
	}

	currentID, currentRevision := configuredModel(app)
	if entry, err := app.RegistryRepository.Get(c.Request.Context()); err == nil {
		currentID, currentRevision = entry.ModelID, entry.ModelRevision
	} else if !errors.Is(err, scaleerr.ErrNotFound) {
		app.Logger.Error("failed to read model registry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to read model registry"})
		return
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = currentID
	}
	revision := req.ModelRevision
	if revision == "" {
		revision = currentRevision
	}

	if modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "model_id is required"})
		return
	}

	entry, err := app.RegistryRepository.Upsert(c.Request.Context(), modelID, revision)
	if err != nil {
		app.Logger.Error("failed to update model registry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update model registry"})
		return
	}

	app.Logger.Info("model reload requested",
		zap.String("model_id", entry.ModelID),
		zap.String("model_revision", entry.ModelRevision))

	c.JSON(http.StatusOK, types.ModelInfo{
		ModelID:       entry.ModelID,
		ModelRevision: entry.ModelRevision,
		UpdatedAt:     entry.UpdatedAt.Time,
	})
}

// GetModelInfo reports the registry's current classifier identity.
func GetModelInfo(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	entry, err := app.RegistryRepository.Get(c.Request.Context())
	if err != nil {
		if errors.Is(err, scaleerr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "model registry not initialized"})
			return
		}

		app.Logger.Error("failed to read model registry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to read model registry"})
		return
	}

	c.JSON(http.StatusOK, types.ModelInfo{
		ModelID:       entry.ModelID,
		ModelRevision: entry.ModelRevision,
		UpdatedAt:     entry.UpdatedAt.Time,
	})
}

func configuredModel(app *app.App) (string, string) {
	cfg := app.Config()
	if cfg.Model == nil {
		return "", ""
	}

	return cfg.Model.ID, cfg.Model.Revision
}
