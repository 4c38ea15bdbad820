package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/db/repository"
	"github.com/smartscale/scale-server/internal/mq"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/services/imagestore"
	"github.com/smartscale/scale-server/internal/services/inference"
	"github.com/smartscale/scale-server/internal/services/modelcache"
	"github.com/smartscale/scale-server/internal/services/pricing"
	"github.com/smartscale/scale-server/internal/types"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

// Processor consumes inference tasks and drives each job to a terminal
// state. Duplicate deliveries are harmless: the guarded claim lets only
// one consumer own a job.
type Processor struct {
	cfg       *config.Config
	logger    *zap.Logger
	mq        mq.MQ
	jobs      repository.IJobRepository
	registry  repository.IRegistryRepository
	cache     *modelcache.Cache
	executor  *inference.Executor
	pricing   *pricing.Resolver
	images    imagestore.FileStorage
	pool      *workerpool.WorkerPool
	threshold float64
}

func NewProcessor(app *app.App) *Processor {
	cfg := app.Config()

	count := config.DefaultWorkerCount
	if cfg.Worker != nil && cfg.Worker.Count > 0 {
		count = cfg.Worker.Count
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = config.DefaultConfidenceThreshold
	}

	return &Processor{
		cfg:       cfg,
		logger:    app.Logger.Named("worker"),
		mq:        app.MQ(),
		jobs:      app.JobRepository,
		registry:  app.RegistryRepository,
		cache:     app.ModelCache(),
		executor:  app.Executor(),
		pricing:   app.Pricing(),
		images:    app.ImageStore(),
		pool:      workerpool.New(count),
		threshold: threshold,
	}
}

// Startup resolves the classifier target and warms the cache. Having no
// resolvable target is fatal; a failed warm load is not, the next job
// retries it.
func (p *Processor) Startup(ctx context.Context) error {
	modelID, revision, err := p.resolveTarget(ctx)
	if err != nil {
		return err
	}

	if _, err := p.cache.Ensure(ctx, modelID, revision); err != nil {
		p.logger.Warn("model warmup failed, loads will retry per job",
			zap.String("model_id", modelID),
			zap.String("model_revision", revision),
			zap.Error(err))
	}

	return nil
}

// Run pulls tasks until the context is cancelled. Messages are acked
// after the job reaches a terminal state, never before.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("worker started", zap.String("topic", config.DefaultInferenceTopic))
	defer p.pool.StopWait()

	for {
		message, err := p.mq.Receive(ctx, config.DefaultInferenceTopic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				return nil
			}

			return err
		}

		data, err := p.mq.GetMessageData(message)
		if err != nil {
			p.logger.Error("failed to read message payload", zap.Error(err))
			continue
		}

		var task types.InferenceTask
		if err := json.Unmarshal(data, &task); err != nil {
			// Unparseable messages can never succeed; drop them.
			p.logger.Error("failed to parse task payload", zap.Error(err))
			p.ack(message)
			continue
		}

		msg := message
		p.pool.Submit(func() {
			p.process(ctx, task)
			p.ack(msg)
		})
	}
}

func (p *Processor) Stop() {
	p.pool.StopWait()
}

func (p *Processor) ack(message interface{}) {
	if err := p.mq.Ack(config.DefaultInferenceTopic, message); err != nil {
		p.logger.Warn("failed to ack message", zap.Error(err))
	}
}

func (p *Processor) process(ctx context.Context, task types.InferenceTask) {
	started := time.Now()
	jobID := task.JobID.String()
	log := p.logger.With(zap.String("job_id", jobID))

	claimed, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		log.Error("failed to claim job", zap.Error(err))
		return
	}
	if !claimed {
		// Duplicate delivery, or the job is already terminal.
		log.Debug("job not claimable, skipping")
		return
	}

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		p.fail(ctx, log, jobID, err)
		return
	}

	completion, err := p.classify(ctx, job, task.RequestedTopK, started)
	if err != nil {
		p.fail(ctx, log, jobID, err)
		return
	}

	applied, err := p.jobs.Complete(ctx, jobID, completion)
	if err != nil {
		p.fail(ctx, log, jobID, err)
		return
	}
	if !applied {
		log.Warn("job left running state before completion could be recorded")
		return
	}

	log.Info("job completed",
		zap.String("status", string(models.JobStatusDone)),
		zap.String("model_id", completion.ModelID),
		zap.String("model_revision", completion.ModelRevision),
		zap.String("predicted_label", completion.PredictedLabel),
		zap.Float64("confidence", completion.Confidence),
		zap.Int64("latency_ms", completion.LatencyMS),
		zap.Bool("low_confidence", completion.Confidence < p.threshold))
}

// classify runs the full predict path for a claimed job: resolve the
// model target, ensure it is loaded, score the stored image, price the
// outcome.
func (p *Processor) classify(ctx context.Context, job *models.InferenceJob, requestedTopK int, started time.Time) (*models.JobCompletion, error) {
	modelID, revision, err := p.resolveTarget(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := p.cache.Ensure(ctx, modelID, revision)
	if err != nil {
		return nil, err
	}

	imageFile, err := p.images.GetFile(ctx, job.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored image: %w", err)
	}

	result, err := p.executor.Run(ctx, entry, imageFile.Content, requestedTopK)
	if err != nil {
		return nil, err
	}

	pricePerKG, totalPrice, err := p.pricing.Resolve(ctx, result.PredictedLabel, job.WeightKG)
	if err != nil {
		return nil, fmt.Errorf("failed to price prediction: %w", err)
	}

	return &models.JobCompletion{
		ModelID:        entry.ModelID,
		ModelRevision:  entry.Revision,
		PredictedLabel: result.PredictedLabel,
		Confidence:     result.Confidence,
		TopK:           result.TopK,
		PricePerKG:     pricePerKG,
		TotalPrice:     totalPrice,
		LatencyMS:      time.Since(started).Milliseconds(),
	}, nil
}

// resolveTarget reads the registry row, falling back to the configured
// default identity when no row has been written yet.
func (p *Processor) resolveTarget(ctx context.Context) (string, string, error) {
	entry, err := p.registry.Get(ctx)
	switch {
	case err == nil:
		return entry.ModelID, entry.ModelRevision, nil
	case errors.Is(err, scaleerr.ErrNotFound):
		if p.cfg.Model == nil || p.cfg.Model.ID == "" {
			return "", "", fmt.Errorf("no classifier configured: registry is empty and no default model is set")
		}

		return p.cfg.Model.ID, p.cfg.Model.Revision, nil
	default:
		return "", "", fmt.Errorf("failed to read model registry: %w", err)
	}
}

func (p *Processor) fail(ctx context.Context, log *zap.Logger, jobID string, cause error) {
	log.Error("job failed", zap.Error(cause))

	applied, err := p.jobs.Fail(ctx, jobID, cause.Error())
	if err != nil {
		log.Error("failed to record job error", zap.Error(err))
		return
	}
	if !applied {
		log.Warn("job left running state before error could be recorded")
	}
}
