package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "tickpulse/internal/errors"
	"tickpulse/internal/pipeline"
	"tickpulse/internal/shared/testutil"
	"tickpulse/pkg/contracts"
	"tickpulse/pkg/contracts/domain"
	"tickpulse/pkg/contracts/events"
)

type stubDashboard struct {
	view    *domain.DashboardView
	tickers []string
	err     error
	got     string
}

func (s *stubDashboard) Dashboard(ctx context.Context, ticker string) (*domain.DashboardView, error) {
	s.got = ticker
	return s.view, s.err
}

func (s *stubDashboard) Tickers(ctx context.Context) ([]string, error) {
	return s.tickers, s.err
}

type stubJobs struct {
	runID string
	err   error
	jobs  []pipeline.Job
	last  *events.RunSnapshot
}

func (s *stubJobs) Submit(ctx context.Context, job pipeline.Job) (string, error) {
	s.jobs = append(s.jobs, job)
	return s.runID, s.err
}

func (s *stubJobs) Last() (events.RunSnapshot, bool) {
	if s.last == nil {
		return events.RunSnapshot{}, false
	}
	return *s.last, true
}

type fixedCount int

func (c fixedCount) ClientCount() int { return int(c) }

type fixedRun string

func (r fixedRun) Active() string { return string(r) }

var testPaths = ReportPaths{
	InputDir:      filepath.Join("srv", "ticks"),
	OutputDir:     filepath.Join("srv", "reports"),
	DefaultOutput: "tick_report.xlsx",
}

func newTestRouter(t *testing.T, dashboard DashboardService, jobs ReportSubmitter) *chi.Mux {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	errorHandler := apierrors.NewErrorHandler(logger, false)

	health := NewHealthHandler(fixedCount(2), fixedRun("run-1"), logger)
	r := chi.NewRouter()
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/version", health.Version)
	r.Mount("/api/v1/dashboard", NewDashboardHandler(dashboard, logger, errorHandler).Routes())
	r.Mount("/api/v1/reports", NewReportHandler(jobs, pipeline.DefaultOptions(), testPaths, logger, errorHandler).Routes())
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, &stubDashboard{}, &stubJobs{})

	rec, body := do(t, router, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, contracts.Version, body["version"])

	services := body["services"].(map[string]interface{})
	assert.EqualValues(t, 2, services["websocket_clients"])
	assert.Equal(t, "run-1", services["active_run"])
}

func TestHealthCheckWithoutDependencies(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil, nil).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVersion(t *testing.T) {
	router := newTestRouter(t, &stubDashboard{}, &stubJobs{})

	rec, body := do(t, router, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.Version, body["version"])
	assert.Equal(t, contracts.APIVersion, body["api_version"])
}

func TestGetDashboard(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	dashboard := &stubDashboard{view: &domain.DashboardView{
		Ticker: "BBOB",
		Bars: []domain.BarIndicators{{
			DailyBar:     domain.DailyBar{Date: date, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
			Returns:      math.NaN(),
			MA20:         math.NaN(),
			MA50:         math.NaN(),
			Volatility20: math.Inf(1),
			SpreadHL:     math.NaN(),
			VolCluster:   -1,
		}},
		Centroids: []domain.ClusterCentroid{},
	}}
	router := newTestRouter(t, dashboard, &stubJobs{})

	rec, body := do(t, router, http.MethodGet, "/api/v1/dashboard/bbob", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bbob", dashboard.got)
	assert.Equal(t, "BBOB", body["ticker"])
	assert.Nil(t, body["regression"])
	assert.Empty(t, body["centroids"])

	bars := body["bars"].([]interface{})
	require.Len(t, bars, 1)
	bar := bars[0].(map[string]interface{})
	assert.Equal(t, "2024-03-04", bar["date"])
	assert.EqualValues(t, 1.5, bar["close"])
	assert.Contains(t, bar, "returns")
	assert.Nil(t, bar["returns"], "NaN encodes as null")
	assert.Nil(t, bar["volatility20"], "Inf encodes as null")
	assert.Nil(t, bar["spread_hl"])
	assert.EqualValues(t, -1, bar["vol_cluster"])
}

func TestListTickers(t *testing.T) {
	router := newTestRouter(t, &stubDashboard{tickers: []string{"AAPL", "MSFT"}}, &stubJobs{})

	rec, body := do(t, router, http.MethodGet, "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{"AAPL", "MSFT"}, body["tickers"])

	router = newTestRouter(t, &stubDashboard{err: apierrors.NewStorageError("list", nil)}, &stubJobs{})
	rec, body = do(t, router, http.MethodGet, "/api/v1/dashboard", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "STORAGE", body["error_code"])
}

func TestGetDashboardErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown ticker", apierrors.NewNotFoundError("ticker NOPE"), http.StatusNotFound, "NOT_FOUND"},
		{"invalid ticker", apierrors.NewAppValidationError("invalid ticker"), http.StatusBadRequest, "VALIDATION"},
		{"bad file", apierrors.NewSchemaError("missing column close", nil), http.StatusBadRequest, "SCHEMA"},
		{"unreadable", apierrors.NewStorageError("open", nil), http.StatusInternalServerError, "STORAGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &stubDashboard{err: tt.err}, &stubJobs{})
			rec, body := do(t, router, http.MethodGet, "/api/v1/dashboard/NOPE", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, body["error_code"])
			assert.Equal(t, "/api/v1/dashboard/NOPE", body["instance"])
		})
	}
}

func TestNewDashboardResponseRegression(t *testing.T) {
	resp := NewDashboardResponse(&domain.DashboardView{
		Ticker:     "X",
		Regression: &domain.RegressionSummary{N: 5, Alpha: 2.2, Beta: 0.6, RSquared: 0.6, AlphaTStat: math.Inf(1)},
		Centroids:  []domain.ClusterCentroid{{Label: 0, Volatility20: 0.01, Returns: math.NaN(), Members: 4}},
	})

	require.NotNil(t, resp.Regression)
	assert.Equal(t, 5, resp.Regression.N)
	assert.InDelta(t, 0.6, *resp.Regression.Beta, 1e-12)
	assert.Nil(t, resp.Regression.AlphaTStat)
	require.Len(t, resp.Centroids, 1)
	assert.Nil(t, resp.Centroids[0].Returns)
	assert.Equal(t, 4, resp.Centroids[0].Members)
	assert.NotNil(t, resp.Bars, "empty bars encode as []")
}

func TestStartReport(t *testing.T) {
	jobs := &stubJobs{runID: "0b7e"}
	router := newTestRouter(t, &stubDashboard{}, jobs)

	rec, body := do(t, router, http.MethodPost, "/api/v1/reports",
		`{"source":" ticks.csv ","format":"CSV","output":"out/r","charts":false,"freq":"5m","window":30,"fill_empty":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "0b7e", body["run_id"])
	assert.Equal(t, "ticks.csv", body["source"])
	assert.Equal(t, "/ws", body["websocket"])

	require.Len(t, jobs.jobs, 1)
	job := jobs.jobs[0]
	assert.Equal(t, filepath.Join(testPaths.InputDir, "ticks.csv"), job.Source)
	assert.Equal(t, "csv", job.Format)
	assert.Equal(t, filepath.Join(testPaths.OutputDir, "out", "r"), job.Output)
	require.NotNil(t, job.Charts)
	assert.False(t, *job.Charts)

	require.NotNil(t, job.Options)
	defaults := pipeline.DefaultOptions()
	assert.Equal(t, 5*time.Minute, job.Options.Freq)
	assert.Equal(t, 30, job.Options.Window)
	assert.Equal(t, defaults.Z, job.Options.Z, "omitted fields keep defaults")
	assert.Equal(t, defaults.Calendar, job.Options.Calendar)
	assert.True(t, job.Options.FillEmpty)
}

func TestStartReportDefaults(t *testing.T) {
	jobs := &stubJobs{runID: "r"}
	router := newTestRouter(t, &stubDashboard{}, jobs)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/reports", `{"source":"ticks.xlsx"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	job := jobs.jobs[0]
	assert.Empty(t, job.Format)
	assert.Equal(t, filepath.Join(testPaths.OutputDir, "tick_report.xlsx"), job.Output)
	assert.Nil(t, job.Charts)
	assert.Equal(t, pipeline.DefaultOptions(), *job.Options)
}

func TestStartReportRejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "missing source", body: `{"format":"xlsx"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "bad format", body: `{"source":"a.csv","format":"pdf"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "bad freq", body: `{"source":"a.csv","freq":"often"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "negative freq", body: `{"source":"a.csv","freq":"-1m"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "negative window", body: `{"source":"a.csv","window":-3}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "hours over a day", body: `{"source":"a.csv","hours_per_day":25}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "malformed json", body: `{"source":`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "absolute source", body: `{"source":"/etc/passwd"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "source climbs out", body: `{"source":"../../etc/passwd"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "output climbs out", body: `{"source":"a.csv","output":"../x.xlsx"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "output hides a climb", body: `{"source":"a.csv","output":"out/../../x.xlsx"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "absolute output", body: `{"source":"a.csv","output":"/tmp/clobber.xlsx"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{
			name:       "run in progress",
			body:       `{"source":"a.csv"}`,
			submitErr:  pipeline.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   "REPORT_RUNNING",
		},
		{
			name:       "writer rejected",
			body:       `{"source":"a.csv"}`,
			submitErr:  apierrors.NewAppValidationError("unsupported report format"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &stubJobs{err: tt.submitErr}
			router := newTestRouter(t, &stubDashboard{}, jobs)
			rec, body := do(t, router, http.MethodPost, "/api/v1/reports", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, body["error_code"])
			if tt.submitErr == nil {
				assert.Empty(t, jobs.jobs, "nothing is submitted")
			}
		})
	}
}

func TestCurrentReport(t *testing.T) {
	jobs := &stubJobs{}
	router := newTestRouter(t, &stubDashboard{}, jobs)

	rec, _ := do(t, router, http.MethodGet, "/api/v1/reports/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	jobs.last = &events.RunSnapshot{RunID: "r1", Status: events.StatusRunning, Progress: 25}
	rec, body := do(t, router, http.MethodGet, "/api/v1/reports/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", body["run_id"])
	assert.EqualValues(t, 25, body["progress"])
}
