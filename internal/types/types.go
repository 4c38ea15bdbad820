package types

import (
	"time"

	"github.com/smartscale/scale-server/internal/db/models"

	"github.com/google/uuid"
)

// InferenceTask is the queue message the API publishes for each accepted
// job. Delivery is at least once; the worker dedupes via the job status.
type InferenceTask struct {
	JobID         uuid.UUID `json:"job_id"`
	RequestedTopK int       `json:"requested_top_k"`
}

type PredictResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type PredictionResult struct {
	PredictedLabel *string                `json:"predicted_label"`
	Confidence     *float64               `json:"confidence"`
	TopK           []models.TopPrediction `json:"top_k"`
	PricePerKG     *float64               `json:"price_per_kg"`
	TotalPrice     *float64               `json:"total_price"`
	ConfirmedLabel *string                `json:"confirmed_label"`
	LatencyMS      *int64                 `json:"latency_ms,omitempty"`
}

type ResultResponse struct {
	Status     string            `json:"status"`
	Prediction *PredictionResult `json:"prediction,omitempty"`
	Error      *string           `json:"error,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
}

type HistoryItem struct {
	ID             uuid.UUID              `json:"id"`
	CreatedAt      time.Time              `json:"created_at"`
	Status         string                 `json:"status"`
	PredictedLabel *string                `json:"predicted_label"`
	Confidence     *float64               `json:"confidence"`
	TopK           []models.TopPrediction `json:"top_k"`
	WeightKG       *float64               `json:"weight_kg"`
	PricePerKG     *float64               `json:"price_per_kg"`
	TotalPrice     *float64               `json:"total_price"`
	ConfirmedLabel *string                `json:"confirmed_label"`
	Error          *string                `json:"error,omitempty"`
}

type HistoryResponse struct {
	Items  []HistoryItem `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type ConfirmRequest struct {
	ConfirmedLabel string `json:"confirmed_label"`
}

type ConfirmResponse struct {
	Status         string `json:"status"`
	JobID          string `json:"job_id"`
	ConfirmedLabel string `json:"confirmed_label"`
}

type ReloadModelRequest struct {
	ModelID       string `json:"model_id"`
	ModelRevision string `json:"model_revision"`
}

type ModelInfo struct {
	ModelID       string    `json:"model_id"`
	ModelRevision string    `json:"model_revision"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Time       float64           `json:"time"`
	Components map[string]string `json:"components,omitempty"`
}
