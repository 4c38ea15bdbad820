package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/smartscale/scale-server/internal/api/middleware"
	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/services/imagestore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "test-admin-token"

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Host:        "localhost",
		Port:        8880,
		Filesystem:  config.FilesystemLocal,
		ImagesDir:   t.TempDir(),
		AdminToken:  testAdminToken,
		DB: &config.DBConfig{
			Driver: "sqlite",
			DSN:    "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc",
		},
		Model:   &config.ModelConfig{ID: "Adriana213/vgg16-fruit-classifier", Revision: "main", InputSize: 100},
		Worker:  &config.WorkerConfig{Count: 1, QueueSize: 16},
		Pricing: &config.PricingConfig{DefaultPricePerKG: 2.99},
	}

	application, err := app.NewApp(cfg,
		app.WithDBInitialization(),
		app.WithMQ(),
		app.WithImageStore(),
		app.WithResultCache(),
		app.WithPricing(),
	)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	return application
}

// newTestRouter mirrors the server's route table with the app injected the
// same way the real handler wrapper does it.
func newTestRouter(application *app.App) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	wrap := func(f gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("app", application)
			f(c)
		}
	}

	r.GET("/file/:filename", wrap(GetFile))

	v1 := r.Group("/v1")
	v1.POST("/predict", wrap(SubmitPrediction))
	v1.GET("/result/:id", wrap(GetResult))
	v1.GET("/history", wrap(GetHistory))
	v1.GET("/health", wrap(GetHealth))
	v1.POST("/confirm/:id", wrap(ConfirmLabel))

	admin := v1.Group("/admin")
	admin.Use(wrap(middleware.AdminMiddleware))
	admin.POST("/reload-model", wrap(ReloadModel))
	admin.GET("/model", wrap(GetModelInfo))

	return r
}

func doRequest(r *gin.Engine, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postJSON(r *gin.Engine, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"

	return doRequest(r, "POST", target, bytes.NewBufferString(body), headers)
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 220, G: 180, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a predict form. An empty fileField omits the image
// part entirely.
func multipartBody(t *testing.T, fileField, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

// queueJob stores an image and inserts a queued job row, bypassing HTTP.
func queueJob(t *testing.T, application *app.App, weightKG *float64) *models.InferenceJob {
	t.Helper()

	content := pngBytes(t)
	locator, err := application.ImageStore().Upload(context.Background(), imagestore.NewFileInfo("seeded", ".png", content))
	require.NoError(t, err)

	job, err := application.JobRepository.Create(context.Background(), models.NewInferenceJob(locator, "cafebabe", weightKG, 3))
	require.NoError(t, err)

	return job
}

func completeJob(t *testing.T, application *app.App, job *models.InferenceJob, label string, confidence float64) {
	t.Helper()
	ctx := context.Background()

	applied, err := application.JobRepository.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = application.JobRepository.Complete(ctx, job.ID.String(), &models.JobCompletion{
		ModelID:        "Adriana213/vgg16-fruit-classifier",
		ModelRevision:  "main",
		PredictedLabel: label,
		Confidence:     confidence,
		TopK: []models.TopPrediction{
			{Label: label, Confidence: confidence},
			{Label: "kiwi", Confidence: 0.04},
		},
		PricePerKG: ptrFloat(1.59),
		TotalPrice: ptrFloat(3.18),
		LatencyMS:  42,
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func failJob(t *testing.T, application *app.App, job *models.InferenceJob, message string) {
	t.Helper()
	ctx := context.Background()

	applied, err := application.JobRepository.Claim(ctx, job.ID.String())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = application.JobRepository.Fail(ctx, job.ID.String(), message)
	require.NoError(t, err)
	require.True(t, applied)
}

func ptrFloat(v float64) *float64 {
	return &v
}
