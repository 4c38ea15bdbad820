package modelcache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartscale/scale-server/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeLabelFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), labelFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

func TestLoadLabelsOrdersByIndex(t *testing.T) {
	path := writeLabelFile(t, `{"1": "banana", "0": "apple", "2": "cherry"}`)

	labels, err := loadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana", "cherry"}, labels)
}

func TestLoadLabelsKeepsHolesEmpty(t *testing.T) {
	path := writeLabelFile(t, `{"0": "apple", "3": "mango"}`)

	labels, err := loadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "", "", "mango"}, labels)
}

func TestLoadLabelsSkipsNonNumericKeys(t *testing.T) {
	path := writeLabelFile(t, `{"0": "apple", "na": "junk", "-2": "junk", " 1 ": "banana"}`)

	labels, err := loadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana"}, labels)
}

func TestLoadLabelsMissingFile(t *testing.T) {
	_, err := loadLabels(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadLabelsMalformedJSON(t *testing.T) {
	path := writeLabelFile(t, `["not", "a", "map"]`)

	_, err := loadLabels(path)
	assert.Error(t, err)
}

func TestIsDirectURL(t *testing.T) {
	assert.True(t, isDirectURL("https://example.com/weights.onnx"))
	assert.True(t, isDirectURL("http://example.com/weights.onnx"))
	assert.False(t, isDirectURL("Adriana213/vgg16-fruit-classifier"))
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "weights.onnx", fileNameFromURL("https://example.com/models/weights.onnx"))
	assert.Equal(t, "weights.onnx", fileNameFromURL("https://example.com/weights.onnx?token=abc"))
	assert.Equal(t, "model.bin", fileNameFromURL(""))
}

func TestDownloadWritesDestination(t *testing.T) {
	payload := []byte("model weights payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "weights.onnx")
	require.NoError(t, downloadWithRetries(context.Background(), srv.URL, dest, zap.NewNop()))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = os.Stat(dest + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file must be renamed away")
}

func TestDownloadResumesPartialFile(t *testing.T) {
	payload := []byte("0123456789abcdefghij")
	half := len(payload) / 2

	var sawRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")
		if sawRange == "" {
			w.Write(payload) //nolint:errcheck
			return
		}

		w.Header().Set("Content-Length", fmt.Sprint(len(payload)-half))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[half:]) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "weights.onnx")
	require.NoError(t, os.WriteFile(dest+".tmp", payload[:half], 0644))

	require.NoError(t, downloadWithResume(context.Background(), srv.URL, dest, dest+".tmp", zap.NewNop()))

	assert.Equal(t, fmt.Sprintf("bytes=%d-", half), sawRange)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownloadRestartsWhenServerIgnoresRange(t *testing.T) {
	payload := []byte("full payload served fresh")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Plain 200 regardless of the Range header.
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "weights.onnx")
	require.NoError(t, os.WriteFile(dest+".tmp", []byte("stale partial"), 0644))

	require.NoError(t, downloadWithResume(context.Background(), srv.URL, dest, dest+".tmp", zap.NewNop()))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchDirectCachesByURL(t *testing.T) {
	payload := []byte("onnx bytes")
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	cfg := &config.Config{ModelsDir: t.TempDir()}
	loader := NewHubLoader(cfg, nil, zap.NewNop())

	url := srv.URL + "/weights.onnx"

	dir, err := loader.fetchDirect(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "direct--"))

	got, err := os.ReadFile(filepath.Join(dir, "weights.onnx"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// A second fetch finds the artifact on disk and skips the network.
	again, err := loader.fetchDirect(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, 1, hits)
}
