package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/uptrace/bun"
)

// JobFilter narrows the history listing. Zero values mean "no filter".
type JobFilter struct {
	Limit         int
	Offset        int
	Label         string
	DateFrom      *time.Time
	DateTo        *time.Time
	MinConfidence *float64
}

const defaultListLimit = 50

type IJobRepository interface {
	Repository[models.InferenceJob]
	WithTx(tx *bun.Tx) IJobRepository
	WithDB(db *bun.DB) IJobRepository

	// Claim moves a job from queued to running. A false return means the
	// guard did not match (already claimed or already terminal) and the
	// caller must treat the job as someone else's.
	Claim(ctx context.Context, id string) (bool, error)
	// Complete moves a job from running to done and writes the prediction
	// fields in the same statement.
	Complete(ctx context.Context, id string, res *models.JobCompletion) (bool, error)
	// Fail moves a job from running to error with a terminal message.
	Fail(ctx context.Context, id string, message string) (bool, error)

	SetConfirmedLabel(ctx context.Context, id, label string) error
	List(ctx context.Context, filter JobFilter) ([]models.InferenceJob, error)
}

type JobRepository struct {
	db bun.IDB
}

func NewJobRepository(db *bun.DB) IJobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.InferenceJob) (*models.InferenceJob, error) {
	if job == nil {
		return nil, fmt.Errorf("job model is nil")
	}

	if err := r.db.NewInsert().Model(job).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.InferenceJob, error) {
	var job models.InferenceJob
	if err := r.db.NewSelect().Model(&job).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scaleerr.NotFoundf("job %s", id)
		}

		return nil, err
	}

	return &job, nil
}

func (r *JobRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.InferenceJob{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *JobRepository) Claim(ctx context.Context, id string) (bool, error) {
	q := r.db.NewUpdate().Model((*models.InferenceJob)(nil))
	return r.transition(ctx, q, id, models.JobStatusQueued, models.JobStatusRunning)
}

func (r *JobRepository) Complete(ctx context.Context, id string, res *models.JobCompletion) (bool, error) {
	if res == nil {
		return false, fmt.Errorf("job completion is nil")
	}

	topK, err := json.Marshal(res.TopK)
	if err != nil {
		return false, fmt.Errorf("failed to encode top_k list: %w", err)
	}

	q := r.db.NewUpdate().Model((*models.InferenceJob)(nil)).
		Set("model_id = ?", res.ModelID).
		Set("model_revision = ?", res.ModelRevision).
		Set("predicted_label = ?", res.PredictedLabel).
		Set("confidence = ?", res.Confidence).
		Set("top_k = ?", string(topK)).
		Set("price_per_kg = ?", res.PricePerKG).
		Set("total_price = ?", res.TotalPrice).
		Set("latency_ms = ?", res.LatencyMS)

	return r.transition(ctx, q, id, models.JobStatusRunning, models.JobStatusDone)
}

func (r *JobRepository) Fail(ctx context.Context, id string, message string) (bool, error) {
	q := r.db.NewUpdate().Model((*models.InferenceJob)(nil)).
		Set("error = ?", message)

	return r.transition(ctx, q, id, models.JobStatusRunning, models.JobStatusError)
}

// transition applies a guarded status change in one statement. The guard on
// the current status is what makes duplicate queue deliveries harmless.
func (r *JobRepository) transition(ctx context.Context, q *bun.UpdateQuery, id string, from, to models.JobStatus) (bool, error) {
	res, err := q.
		Set("status = ?", to).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *JobRepository) SetConfirmedLabel(ctx context.Context, id, label string) error {
	res, err := r.db.NewUpdate().Model((*models.InferenceJob)(nil)).
		Set("confirmed_label = ?", label).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Where("status = ?", models.JobStatusDone).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	exists, err := r.db.NewSelect().Model((*models.InferenceJob)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return scaleerr.NotFoundf("job %s", id)
	}

	return scaleerr.InvalidStatef("job %s is not done", id)
}

func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]models.InferenceJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var jobs []models.InferenceJob
	q := r.db.NewSelect().Model(&jobs).Order("created_at DESC").Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Label != "" {
		q = q.Where("predicted_label = ?", filter.Label)
	}
	if filter.DateFrom != nil {
		q = q.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("created_at <= ?", *filter.DateTo)
	}
	if filter.MinConfidence != nil {
		q = q.Where("confidence >= ?", *filter.MinConfidence)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *JobRepository) WithTx(tx *bun.Tx) IJobRepository {
	return &JobRepository{db: tx}
}

func (r *JobRepository) WithDB(db *bun.DB) IJobRepository {
	return &JobRepository{db: db}
}
