package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartscale/scale-server/internal/db/drivers"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/scaleerr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc"

	driver, err := drivers.NewSQLiteDriver(ctx, dsn)
	require.NoError(t, err)

	db := driver.GetDB()
	t.Cleanup(func() { db.Close() })

	for _, table := range []interface{}{
		(*models.InferenceJob)(nil),
		(*models.ModelRegistryEntry)(nil),
		(*models.ProductPrice)(nil),
	} {
		_, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func ptrFloat(v float64) *float64 {
	return &v
}

func createJob(t *testing.T, jobs IJobRepository, weightKG *float64) *models.InferenceJob {
	t.Helper()

	job, err := jobs.Create(context.Background(), models.NewInferenceJob("images/abc.png", "deadbeef", weightKG, 3))
	require.NoError(t, err)

	return job
}

func completion() *models.JobCompletion {
	return &models.JobCompletion{
		ModelID:        "Adriana213/vgg16-fruit-classifier",
		ModelRevision:  "main",
		PredictedLabel: "banana",
		Confidence:     0.91,
		TopK: []models.TopPrediction{
			{Label: "banana", Confidence: 0.91},
			{Label: "mango", Confidence: 0.06},
		},
		PricePerKG: ptrFloat(1.59),
		TotalPrice: ptrFloat(3.18),
		LatencyMS:  42,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))

	created := createJob(t, jobs, ptrFloat(1.5))
	assert.False(t, created.CreatedAt.IsZero())

	got, err := jobs.GetByID(ctx, created.ID.String())
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, "images/abc.png", got.ImagePath)
	assert.Equal(t, "deadbeef", got.ImageSHA256)
	assert.Equal(t, 3, got.RequestedTopK)
	require.NotNil(t, got.WeightKG)
	assert.Equal(t, 1.5, *got.WeightKG)
	assert.Empty(t, got.ModelID)
	assert.Nil(t, got.PredictedLabel)
}

func TestGetJobNotFound(t *testing.T) {
	jobs := NewJobRepository(newTestDB(t))

	_, err := jobs.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, scaleerr.ErrNotFound)
}

func TestClaimAppliesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := createJob(t, jobs, nil)

	applied, err := jobs.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := jobs.GetByID(ctx, job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)

	// A second delivery of the same task must not re-claim the job.
	applied, err = jobs.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestClaimMissingJob(t *testing.T) {
	jobs := NewJobRepository(newTestDB(t))

	applied, err := jobs.Claim(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCompletePersistsPrediction(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := createJob(t, jobs, ptrFloat(2.0))

	applied, err := jobs.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = jobs.Complete(ctx, job.ID.String(), completion())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := jobs.GetByID(ctx, job.ID.String())
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusDone, got.Status)
	assert.Equal(t, "Adriana213/vgg16-fruit-classifier", got.ModelID)
	assert.Equal(t, "main", got.ModelRevision)
	require.NotNil(t, got.PredictedLabel)
	assert.Equal(t, "banana", *got.PredictedLabel)
	require.NotNil(t, got.Confidence)
	assert.Equal(t, 0.91, *got.Confidence)
	require.Len(t, got.TopK, 2)
	assert.Equal(t, models.TopPrediction{Label: "banana", Confidence: 0.91}, got.TopK[0])
	assert.Equal(t, models.TopPrediction{Label: "mango", Confidence: 0.06}, got.TopK[1])
	require.NotNil(t, got.PricePerKG)
	assert.Equal(t, 1.59, *got.PricePerKG)
	require.NotNil(t, got.TotalPrice)
	assert.Equal(t, 3.18, *got.TotalPrice)
	require.NotNil(t, got.LatencyMS)
	assert.Equal(t, int64(42), *got.LatencyMS)

	// The job is terminal now; a duplicate completion must not apply.
	applied, err = jobs.Complete(ctx, job.ID.String(), completion())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCompleteRequiresRunning(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := createJob(t, jobs, nil)

	applied, err := jobs.Complete(ctx, job.ID.String(), completion())
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := jobs.GetByID(ctx, job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
}

func TestFailRecordsTerminalError(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := createJob(t, jobs, nil)

	applied, err := jobs.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = jobs.Fail(ctx, job.ID.String(), "inference failed: decode error")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := jobs.GetByID(ctx, job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, got.Status)
	assert.Equal(t, "inference failed: decode error", got.Error)

	applied, err = jobs.Fail(ctx, job.ID.String(), "again")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSetConfirmedLabel(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))

	done := createJob(t, jobs, nil)
	applied, err := jobs.Claim(ctx, done.ID.String())
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = jobs.Complete(ctx, done.ID.String(), completion())
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, jobs.SetConfirmedLabel(ctx, done.ID.String(), "mango"))

	got, err := jobs.GetByID(ctx, done.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedLabel)
	assert.Equal(t, "mango", *got.ConfirmedLabel)

	queued := createJob(t, jobs, nil)
	err = jobs.SetConfirmedLabel(ctx, queued.ID.String(), "mango")
	assert.ErrorIs(t, err, scaleerr.ErrInvalidState)

	err = jobs.SetConfirmedLabel(ctx, uuid.NewString(), "mango")
	assert.ErrorIs(t, err, scaleerr.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))

	finish := func(label string, confidence float64) {
		job := createJob(t, jobs, nil)
		applied, err := jobs.Claim(ctx, job.ID.String())
		require.NoError(t, err)
		require.True(t, applied)

		res := completion()
		res.PredictedLabel = label
		res.Confidence = confidence
		applied, err = jobs.Complete(ctx, job.ID.String(), res)
		require.NoError(t, err)
		require.True(t, applied)
	}

	finish("apple", 0.95)
	finish("banana", 0.60)
	createJob(t, jobs, nil)

	all, err := jobs.List(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byLabel, err := jobs.List(ctx, JobFilter{Label: "apple"})
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "apple", *byLabel[0].PredictedLabel)

	confident, err := jobs.List(ctx, JobFilter{MinConfidence: ptrFloat(0.8)})
	require.NoError(t, err)
	require.Len(t, confident, 1)
	assert.Equal(t, "apple", *confident[0].PredictedLabel)

	limited, err := jobs.List(ctx, JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	offset, err := jobs.List(ctx, JobFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, offset, 1)

	dayAgo := time.Now().Add(-24 * time.Hour)
	dayAhead := time.Now().Add(24 * time.Hour)

	recent, err := jobs.List(ctx, JobFilter{DateFrom: &dayAgo, DateTo: &dayAhead})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	none, err := jobs.List(ctx, JobFilter{DateTo: &dayAgo})
	require.NoError(t, err)
	assert.Empty(t, none)
}
