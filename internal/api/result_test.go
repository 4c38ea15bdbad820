package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smartscale/scale-server/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResultRejectsMalformedID(t *testing.T) {
	r := newTestRouter(newTestApp(t))

	rec := doRequest(r, "GET", "/v1/result/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid job id")
}

func TestGetResultUnknownJob(t *testing.T) {
	r := newTestRouter(newTestApp(t))

	rec := doRequest(r, "GET", "/v1/result/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "job_id not found")
}

func TestGetResultQueuedJob(t *testing.T) {
	application := newTestApp(t)
	r := newTestRouter(application)
	job := queueJob(t, application, nil)

	rec := doRequest(r, "GET", "/v1/result/"+job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ResultResponse
	decodeInto(t, rec, &resp)

	assert.Equal(t, "queued", resp.Status)
	assert.Nil(t, resp.Prediction)
	assert.Nil(t, resp.Error)
	assert.Equal(t, fmt.Sprintf("http://localhost:8880/file/%s", job.ImagePath), resp.ImageURL)
}

func TestGetResultDoneJob(t *testing.T) {
	application := newTestApp(t)
	r := newTestRouter(application)

	job := queueJob(t, application, ptrFloat(2.0))
	completeJob(t, application, job, "banana", 0.91)

	rec := doRequest(r, "GET", "/v1/result/"+job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ResultResponse
	decodeInto(t, rec, &resp)

	assert.Equal(t, "done", resp.Status)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Prediction)

	p := resp.Prediction
	require.NotNil(t, p.PredictedLabel)
	assert.Equal(t, "banana", *p.PredictedLabel)
	require.NotNil(t, p.Confidence)
	assert.InDelta(t, 0.91, *p.Confidence, 1e-9)
	require.Len(t, p.TopK, 2)
	assert.Equal(t, "banana", p.TopK[0].Label)
	require.NotNil(t, p.PricePerKG)
	assert.InDelta(t, 1.59, *p.PricePerKG, 1e-9)
	require.NotNil(t, p.TotalPrice)
	assert.InDelta(t, 3.18, *p.TotalPrice, 1e-9)
	assert.Nil(t, p.ConfirmedLabel)
	require.NotNil(t, p.LatencyMS)
	assert.Equal(t, int64(42), *p.LatencyMS)
}

func TestGetResultFailedJob(t *testing.T) {
	application := newTestApp(t)
	r := newTestRouter(application)

	job := queueJob(t, application, nil)
	failJob(t, application, job, "inference failed: bad image")

	rec := doRequest(r, "GET", "/v1/result/"+job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ResultResponse
	decodeInto(t, rec, &resp)

	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, resp.Prediction)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "inference failed: bad image", *resp.Error)
}

func TestGetHistoryFiltersAndShapes(t *testing.T) {
	application := newTestApp(t)
	r := newTestRouter(application)

	apple := queueJob(t, application, ptrFloat(1.0))
	completeJob(t, application, apple, "apple", 0.95)

	banana := queueJob(t, application, nil)
	completeJob(t, application, banana, "banana", 0.60)

	queueJob(t, application, nil)

	var resp types.HistoryResponse

	rec := doRequest(r, "GET", "/v1/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.Len(t, resp.Items, 3)
	assert.Equal(t, 50, resp.Limit)
	assert.Equal(t, 0, resp.Offset)

	rec = doRequest(r, "GET", "/v1/history?label=apple", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, apple.ID, resp.Items[0].ID)
	require.NotNil(t, resp.Items[0].WeightKG)
	assert.Equal(t, 1.0, *resp.Items[0].WeightKG)

	rec = doRequest(r, "GET", "/v1/history?min_confidence=0.8", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, apple.ID, resp.Items[0].ID)

	rec = doRequest(r, "GET", "/v1/history?limit=2&offset=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 2, resp.Offset)

	from := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	rec = doRequest(r, "GET", "/v1/history?date_from="+from, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.Len(t, resp.Items, 3)

	to := time.Now().Add(-24 * time.Hour).Format("2006-01-02")
	rec = doRequest(r, "GET", "/v1/history?date_to="+to, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &resp)
	assert.Empty(t, resp.Items)
}

func TestGetHistoryEmptyListIsNotNull(t *testing.T) {
	r := newTestRouter(newTestApp(t))

	rec := doRequest(r, "GET", "/v1/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestGetHistoryValidation(t *testing.T) {
	r := newTestRouter(newTestApp(t))

	cases := []struct {
		query   string
		message string
	}{
		{"limit=abc", "limit must be an integer"},
		{"limit=0", "limit must be 1..500"},
		{"limit=501", "limit must be 1..500"},
		{"offset=-1", "offset must be a non-negative integer"},
		{"min_confidence=high", "min_confidence must be a number"},
		{"date_from=yesterday", "invalid date_from"},
		{"date_to=13-37", "invalid date_to"},
	}

	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rec := doRequest(r, "GET", "/v1/history?"+tc.query, nil, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
		})
	}
}

func TestParseDate(t *testing.T) {
	ts, err := parseDate("2026-08-22T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 10, ts.Hour())

	ts, err = parseDate("2026-08-22")
	require.NoError(t, err)
	assert.Equal(t, time.August, ts.Month())
	assert.Equal(t, 0, ts.Hour())

	_, err = parseDate("next tuesday")
	assert.Error(t, err)
}
