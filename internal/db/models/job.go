package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// TopPrediction is one entry of a job's ordered top-k list.
type TopPrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type InferenceJob struct {
	bun.BaseModel `bun:"table:inference_jobs"`

	ID            uuid.UUID `bun:",type:uuid,pk"`
	Status        JobStatus `bun:",notnull"`
	ImagePath     string    `bun:"image_path,notnull"`
	ImageSHA256   string    `bun:"image_sha256,notnull"`
	WeightKG      *float64  `bun:"weight_kg"`
	RequestedTopK int       `bun:"requested_top_k,notnull"`

	// Classifier identity is bound when a worker claims the job, never at
	// submission time.
	ModelID       string `bun:"model_id,nullzero"`
	ModelRevision string `bun:"model_revision,nullzero"`

	PredictedLabel *string         `bun:"predicted_label"`
	Confidence     *float64        `bun:"confidence"`
	TopK           []TopPrediction `bun:"top_k,type:jsonb,nullzero"`
	PricePerKG     *float64        `bun:"price_per_kg"`
	TotalPrice     *float64        `bun:"total_price"`
	ConfirmedLabel *string         `bun:"confirmed_label"`
	Error          string          `bun:"error,nullzero"`
	LatencyMS      *int64          `bun:"latency_ms"`

	CreatedAt bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewInferenceJob(imagePath, imageSHA256 string, weightKG *float64, topK int) *InferenceJob {
	return &InferenceJob{
		ID:            uuid.Must(uuid.NewRandom()),
		Status:        JobStatusQueued,
		ImagePath:     imagePath,
		ImageSHA256:   imageSHA256,
		WeightKG:      weightKG,
		RequestedTopK: topK,
	}
}

// JobCompletion carries the fields written by the running -> done transition.
type JobCompletion struct {
	ModelID        string
	ModelRevision  string
	PredictedLabel string
	Confidence     float64
	TopK           []TopPrediction
	PricePerKG     *float64
	TotalPrice     *float64
	LatencyMS      int64
}
