package modelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/services/modelruntime"
	"github.com/smartscale/scale-server/internal/utils/hashutil"

	"github.com/cozy-creator/hf-hub/hub"
	"go.uber.org/zap"
)

const labelFileName = "class_labels.json"

// HubLoader fetches classifier artifacts and hands them to the runtime.
// Model identifiers are Hugging Face repo ids by default; http(s) URLs
// are fetched directly into the models directory instead.
type HubLoader struct {
	client  *hub.Client
	runtime *modelruntime.Runtime
	logger  *zap.Logger
}

func NewHubLoader(cfg *config.Config, runtime *modelruntime.Runtime, logger *zap.Logger) *HubLoader {
	client := hub.DefaultClient()
	if cfg.ModelsDir != "" {
		client = client.WithCacheDir(cfg.ModelsDir)
	}

	return &HubLoader{
		client:  client,
		runtime: runtime,
		logger:  logger.Named("model_loader"),
	}
}

func (l *HubLoader) Load(ctx context.Context, modelID, revision string) (*Entry, error) {
	artifactDir, err := l.fetchArtifacts(ctx, modelID, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model artifacts: %w", err)
	}

	labels, err := loadLabels(filepath.Join(artifactDir, labelFileName))
	if err != nil {
		// Predictions still work without a label file, they just report
		// raw class indices.
		l.logger.Warn("no usable label file, falling back to class indices",
			zap.String("model_id", modelID),
			zap.Error(err))
		labels = nil
	}

	predictor, err := l.runtime.LoadPredictor(ctx, artifactDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load model into runtime: %w", err)
	}

	return &Entry{
		ModelID:   modelID,
		Revision:  revision,
		Predictor: predictor,
		Labels:    labels,
		LoadedAt:  time.Now(),
	}, nil
}

func (l *HubLoader) fetchArtifacts(ctx context.Context, modelID, revision string) (string, error) {
	if isDirectURL(modelID) {
		return l.fetchDirect(ctx, modelID)
	}

	repo := hub.NewRepo(modelID)
	if revision != "" {
		repo = repo.WithRevision(revision)
	}

	l.logger.Info("downloading model snapshot",
		zap.String("model_id", modelID),
		zap.String("model_revision", revision))

	params := hub.DownloadParams{Repo: repo}
	path, err := l.client.Download(&params)
	if err != nil {
		return "", err
	}

	return path, nil
}

// fetchDirect downloads a single artifact URL into a content-addressed
// directory under the hub cache so repeated loads reuse it.
func (l *HubLoader) fetchDirect(ctx context.Context, rawURL string) (string, error) {
	destDir := filepath.Join(l.client.CacheDir, "direct--"+hashutil.Blake3Hash([]byte(rawURL))[:16])
	destPath := filepath.Join(destDir, fileNameFromURL(rawURL))

	if _, err := os.Stat(destPath); err == nil {
		l.logger.Info("model artifact already present", zap.String("path", destPath))
		return destDir, nil
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model dir: %w", err)
	}

	if err := downloadWithRetries(ctx, rawURL, destPath, l.logger); err != nil {
		return "", err
	}

	return destDir, nil
}

func isDirectURL(modelID string) bool {
	return strings.HasPrefix(modelID, "http://") || strings.HasPrefix(modelID, "https://")
}

func fileNameFromURL(rawURL string) string {
	name := filepath.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return "model.bin"
	}

	return name
}

// loadLabels reads a {"0": "apple", ...} mapping and flattens it into a
// slice ordered by class index. Holes stay empty and resolve to the index
// string at prediction time.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse label file: %w", err)
	}

	maxIndex := -1
	byIndex := make(map[int]string, len(raw))
	for key, label := range raw {
		index, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || index < 0 {
			continue
		}

		byIndex[index] = label
		if index > maxIndex {
			maxIndex = index
		}
	}

	labels := make([]string, maxIndex+1)
	for index, label := range byIndex {
		labels[index] = label
	}

	return labels, nil
}
