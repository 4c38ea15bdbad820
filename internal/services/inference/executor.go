package inference

import (
	"context"
	"sort"
	"strconv"

	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/services/modelcache"

	"go.uber.org/zap"
)

// MaxTopK caps how many ranked predictions a single job may request.
const MaxTopK = 5

// Result is the outcome of running one image through the classifier.
type Result struct {
	PredictedLabel string
	Confidence     float64
	TopK           []models.TopPrediction
}

// Executor runs the deterministic predict path: preprocess, score,
// rank. It holds no model state of its own; each call works against the
// Entry the caller resolved.
type Executor struct {
	inputSize int
	logger    *zap.Logger
}

func NewExecutor(cfg *config.Config, logger *zap.Logger) *Executor {
	size := config.DefaultInputSize
	if cfg.Model != nil && cfg.Model.InputSize > 0 {
		size = cfg.Model.InputSize
	}

	return &Executor{
		inputSize: size,
		logger:    logger.Named("inference"),
	}
}

func (e *Executor) Run(ctx context.Context, entry *modelcache.Entry, imageData []byte, requestedTopK int) (*Result, error) {
	tensor, err := Preprocess(imageData, e.inputSize)
	if err != nil {
		return nil, scaleerr.Inferencef("%v", err)
	}

	probs, err := entry.Predictor.Predict(ctx, tensor, e.inputSize, e.inputSize)
	if err != nil {
		return nil, scaleerr.Inferencef("predict failed: %v", err)
	}
	if len(probs) == 0 {
		return nil, scaleerr.Inferencef("model returned no class scores")
	}

	ranked := rankTopK(probs, requestedTopK)

	topK := make([]models.TopPrediction, len(ranked))
	for i, classIndex := range ranked {
		topK[i] = models.TopPrediction{
			Label:      labelFor(entry.Labels, classIndex),
			Confidence: float64(probs[classIndex]),
		}
	}

	return &Result{
		PredictedLabel: topK[0].Label,
		Confidence:     topK[0].Confidence,
		TopK:           topK,
	}, nil
}

// rankTopK returns the class indices of the k highest scores, ordered by
// descending score with ties broken by ascending index. k is clamped to
// [1, MaxTopK] and to the number of classes.
func rankTopK(probs []float32, requested int) []int {
	k := requested
	if k < 1 {
		k = 1
	}
	if k > MaxTopK {
		k = MaxTopK
	}
	if k > len(probs) {
		k = len(probs)
	}

	indices := make([]int, len(probs))
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(a, b int) bool {
		return probs[indices[a]] > probs[indices[b]]
	})

	return indices[:k]
}

func labelFor(labels []string, index int) string {
	if index >= 0 && index < len(labels) && labels[index] != "" {
		return labels[index]
	}

	return strconv.Itoa(index)
}
