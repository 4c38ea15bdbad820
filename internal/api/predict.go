package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/services/imagestore"
	"github.com/smartscale/scale-server/internal/types"
	"github.com/smartscale/scale-server/internal/utils/hashutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTopK = 3

// SubmitPrediction accepts a multipart image upload, stores it, records a
// queued job and publishes the task. The response returns immediately;
// classification happens in the worker.
func SubmitPrediction(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "image file is required"})
		return
	}

	topK := defaultTopK
	if raw := c.PostForm("top_k"); raw != "" {
		topK, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "top_k must be an integer"})
			return
		}
	}
	if topK < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "top_k must be >= 1"})
		return
	}

	var weightKG *float64
	if raw := c.PostForm("weight_kg"); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "weight_kg must be a number"})
			return
		}
		if weight <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "weight_kg must be > 0"})
			return
		}
		weightKG = &weight
	}

	imageBytes, err := readFileContent(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to read image file"})
		return
	}
	if len(imageBytes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "empty image payload"})
		return
	}

	imageSHA := hashutil.Sha256Hash(imageBytes)

	ext := filepath.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".jpg"
	}

	info := imagestore.NewFileInfo(hashutil.Blake3Hash(imageBytes), ext, imageBytes)
	locator, err := app.ImageStore().Upload(c.Request.Context(), info)
	if err != nil {
		app.Logger.Error("failed to store image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to store image"})
		return
	}

	job := models.NewInferenceJob(locator, imageSHA, weightKG, topK)
	if _, err := app.JobRepository.Create(c.Request.Context(), job); err != nil {
		app.Logger.Error("failed to create job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to create job"})
		return
	}

	task := types.InferenceTask{JobID: job.ID, RequestedTopK: topK}
	payload, err := json.Marshal(task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to encode task"})
		return
	}

	if err := app.MQ().Publish(c.Request.Context(), config.DefaultInferenceTopic, payload); err != nil {
		// The row stays queued; a resubmission of the same image creates a
		// fresh job rather than resurrecting this one.
		app.Logger.Error("failed to publish task", zap.String("job_id", job.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to enqueue job"})
		return
	}

	app.Logger.Info("job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("image_sha256", imageSHA),
		zap.Int("requested_top_k", topK),
		zap.Float64p("weight_kg", weightKG))

	c.JSON(http.StatusOK, types.PredictResponse{
		JobID:  job.ID.String(),
		Status: string(models.JobStatusQueued),
	})
}

func readFileContent(file *multipart.FileHeader) ([]byte, error) {
	content, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer content.Close()

	return io.ReadAll(content)
}
