package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/metrics"
	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

type testServer struct {
	store *storage.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	opts = append([]Option{WithRunID("run-1"), WithMetrics(metrics.New(nil))}, opts...)
	return &testServer{store: store, mux: New(store, opts...).Routes()}
}

func (s *testServer) do(t *testing.T, method, path, code string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if code != "" {
		req.Header.Set(models.AccessCodeHeader, code)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func intPtr(v int) *int { return &v }

func TestAccessCodeRequired(t *testing.T) {
	s := newTestServer(t)
	for _, route := range []string{models.RouteProgressSummary, models.RouteReportSummary, models.RouteCaseLogs} {
		rec := s.do(t, http.MethodGet, route, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route)
	}
	rec := s.do(t, http.MethodPost, models.RouteCompleteCase, "  ", models.CompleteCaseRequest{CaseID: "c"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodPost, models.RouteProgressSummary, "A", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodGet, models.RouteCompleteCase, "A", nil).Code)
}

func TestEmptySummaries(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, models.RouteProgressSummary, "A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[models.ProgressSummary](t, rec)
	assert.Equal(t, models.ProgressSummary{TotalTimeFormatted: "00:00:00", RunID: "run-1"}, sum)

	rec = s.do(t, http.MethodGet, models.RouteReportSummary, "A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"avg_green_score":null`)
}

func TestCompleteCaseWithCounts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{
		CaseID: "c1", TimeSpentMs: 61000, CorrectCount: intPtr(3), IncorrectCount: intPtr(1),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[models.ProgressSummary](t, rec)
	assert.Equal(t, int64(3), sum.CorrectCases)
	assert.Equal(t, int64(1), sum.IncorrectCases)
	assert.Equal(t, int64(1), sum.ImagesTotal)
	assert.Equal(t, int64(61000), sum.LastTimerCheckpointMs)
	assert.Equal(t, "00:01:01", sum.TotalTimeFormatted)

	rec = s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{
		CaseID: "c2", TimeSpentMs: 9000, CorrectCount: intPtr(0), IncorrectCount: intPtr(2),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	sum = decode[models.ProgressSummary](t, rec)
	assert.Equal(t, int64(70000), sum.LastTimerCheckpointMs)
	assert.Equal(t, int64(2), sum.CasesTotal)

	logs := decode[[]dataset.CaseLogRow](t, s.do(t, http.MethodGet, models.RouteCaseLogs, "A", nil))
	require.Len(t, logs, 2)
	assert.Equal(t, "c2", logs[1].CaseID)
}

func TestCompleteCaseValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, models.RouteCompleteCase, strings.NewReader("{"))
	req.Header.Set(models.AccessCodeHeader, "A")
	raw := httptest.NewRecorder()
	s.mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{CaseID: "c1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no counts and no ground truth")
}

func TestCompleteCaseGradedServerSide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truth.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"case_id":"c1","boxes":[{"label":"Nodule/Mass","coordinates":[0,0,0.5,0.5]}],"present":["Pneumothorax"]}`+"\n"), 0o644))
	set, err := dataset.NewLoader(path).Load()
	require.NoError(t, err)
	s := newTestServer(t, WithGroundTruth(set))

	rec := s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{
		CaseID: "c1",
		Selections: models.Selections{
			UserBoxes:      []models.BoxRecord{{Label: "Nodule/Mass", Coordinates: [4]float64{0, 0, 0.5, 0.5}}},
			Nonlocalizable: map[string]bool{"Pneumothorax": true, "Scoliosis": true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[models.ProgressSummary](t, rec)
	assert.Equal(t, int64(2), sum.CorrectCases)
	assert.Equal(t, int64(1), sum.IncorrectCases)

	rec = s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{CaseID: "unknown"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, models.RouteCheckpoint, "A", models.CheckpointRequest{TimerCheckpointMs: 5000})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.do(t, http.MethodPost, models.RouteCompleteCase, "A", models.CompleteCaseRequest{
		CaseID: "c1", TimeSpentMs: 1000, CorrectCount: intPtr(1), IncorrectCount: intPtr(0),
	})
	rec = s.do(t, http.MethodPost, models.RouteCheckpoint, "A", models.CheckpointRequest{TimerCheckpointMs: 720000})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CheckpointResponse{Status: "ok", TimerCheckpointMs: 720000}, decode[models.CheckpointResponse](t, rec))

	sum := decode[models.ProgressSummary](t, s.do(t, http.MethodGet, models.RouteProgressSummary, "A", nil))
	assert.Equal(t, int64(720000), sum.LastTimerCheckpointMs)
}

func TestReportSubmit(t *testing.T) {
	s := newTestServer(t)
	green := 0.8

	rec := s.do(t, http.MethodPost, models.RouteReportSubmit, "A", models.ReportSubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, models.RouteReportSubmit, "A", models.ReportSubmitRequest{
		CaseID: "r1", Findings: "No acute findings.", TimeSpentMs: 45000, GreenScore: &green,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[models.ReportSummary](t, rec)
	assert.Equal(t, int64(1), sum.ReportCasesCompleted)
	require.NotNil(t, sum.AvgGreenScore)
	assert.InDelta(t, 0.8, *sum.AvgGreenScore, 1e-9)
	assert.Equal(t, int64(45000), sum.LastTimerCheckpointMs)
	assert.Equal(t, "run-1", sum.RunID)
}

func TestSnapshotAndHeartbeat(t *testing.T) {
	s := newTestServer(t)
	body := models.SnapshotRequest{Metadata: models.ProgressSnapshot{CaseCount: 4, ImagesProcessed: 5, ElapsedMs: 1234}}

	for _, route := range []string{models.RouteSnapshot, models.RouteHeartbeat} {
		rec := s.do(t, http.MethodPost, route, "A", body)
		require.Equal(t, http.StatusOK, rec.Code, route)
		assert.Equal(t, models.StatusResponse{Status: "ok"}, decode[models.StatusResponse](t, rec))
	}

	snap, ok, err := s.store.LatestSnapshot(context.Background(), "A", KindHeartbeat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.ImagesProcessed)
}

func TestHealthcheckAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, "OK", rec.Body.String())

	s.do(t, http.MethodGet, models.RouteProgressSummary, "A", nil)
	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `radtrack_http_requests_total{code="200",route="/api/progress/summary"} 1`)
}

func TestRunIDGenerated(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	a, b := New(store), New(store)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}
