package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/cache"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/db/repository"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	historyMaxLimit     = 500
	historyDefaultLimit = 50
)

// GetResult returns the job's current state. Terminal results are served
// through the result cache; in-flight jobs always hit the database.
func GetResult(c *gin.Context) {
	id := c.Param("id")
	jobID, err := uuid.Parse(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid job id"})
		return
	}

	app := c.MustGet("app").(*app.App)

	if payload, ok, err := app.ResultCache().GetResult(c.Request.Context(), jobID); err != nil {
		app.Logger.Warn("result cache read failed", zap.Error(err))
	} else if ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		return
	}

	job, err := app.JobRepository.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, scaleerr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "job_id not found"})
			return
		}

		app.Logger.Error("failed to load job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load job"})
		return
	}

	resp := toResultResponse(app, job)

	if job.Status == models.JobStatusDone || job.Status == models.JobStatusError {
		if payload, err := json.Marshal(resp); err == nil {
			if err := app.ResultCache().SetResult(c.Request.Context(), jobID, payload, cache.ResultTTL); err != nil {
				app.Logger.Warn("result cache write failed", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetHistory lists recent jobs, newest first, with optional filters.
func GetHistory(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	limit := historyDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be an integer"})
			return
		}
		limit = parsed
	}
	if limit < 1 || limit > historyMaxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be 1..500"})
		return
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "offset must be a non-negative integer"})
			return
		}
		offset = parsed
	}

	filter := repository.JobFilter{
		Limit:  limit,
		Offset: offset,
		Label:  c.Query("label"),
	}

	if raw := c.Query("date_from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid date_from"})
			return
		}
		filter.DateFrom = &t
	}

	if raw := c.Query("date_to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid date_to"})
			return
		}
		filter.DateTo = &t
	}

	if raw := c.Query("min_confidence"); raw != "" {
		minConfidence, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "min_confidence must be a number"})
			return
		}
		filter.MinConfidence = &minConfidence
	}

	jobs, err := app.JobRepository.List(c.Request.Context(), filter)
	if err != nil {
		app.Logger.Error("failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list jobs"})
		return
	}

	items := make([]types.HistoryItem, 0, len(jobs))
	for i := range jobs {
		items = append(items, toHistoryItem(&jobs[i]))
	}

	c.JSON(http.StatusOK, types.HistoryResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

func toResultResponse(app *app.App, job *models.InferenceJob) types.ResultResponse {
	resp := types.ResultResponse{
		Status:   string(job.Status),
		ImageURL: app.ImageStore().URL(job.ImagePath),
	}

	if job.Error != "" {
		resp.Error = &job.Error
	}

	if job.Status == models.JobStatusDone {
		resp.Prediction = &types.PredictionResult{
			PredictedLabel: job.PredictedLabel,
			Confidence:     job.Confidence,
			TopK:           job.TopK,
			PricePerKG:     job.PricePerKG,
			TotalPrice:     job.TotalPrice,
			ConfirmedLabel: job.ConfirmedLabel,
			LatencyMS:      job.LatencyMS,
		}
	}

	return resp
}

func toHistoryItem(job *models.InferenceJob) types.HistoryItem {
	item := types.HistoryItem{
		ID:             job.ID,
		CreatedAt:      job.CreatedAt.Time,
		Status:         string(job.Status),
		PredictedLabel: job.PredictedLabel,
		Confidence:     job.Confidence,
		TopK:           job.TopK,
		WeightKG:       job.WeightKG,
		PricePerKG:     job.PricePerKG,
		TotalPrice:     job.TotalPrice,
		ConfirmedLabel: job.ConfirmedLabel,
	}

	if job.Error != "" {
		item.Error = &job.Error
	}

	return item
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	return time.Parse("2006-01-02", raw)
}
