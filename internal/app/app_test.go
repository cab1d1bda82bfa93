package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickpulse/internal/config"
	"tickpulse/internal/shared/testutil"
	"tickpulse/pkg/contracts/events"
)

const tickCSV = `symbol,timestamp,bid,ask,size
AAPL,2024-03-04 09:30:00,100.00,100.02,10
AAPL,2024-03-04 09:30:30,100.01,100.03,5
AAPL,2024-03-04 09:31:10,100.05,100.06,7
MSFT,2024-03-04 09:30:05,400.00,400.10,3
MSFT,2024-03-04 09:32:00,400.20,400.24,8
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Telemetry.MetricExporter = "none"
	cfg.Telemetry.TraceExporter = "none"
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Dashboard.DataDir = filepath.Join(dir, "data")
	cfg.Report.Output = "report.xlsx"
	cfg.Report.InputDir = filepath.Join(dir, "ticks")
	cfg.Report.OutputDir = filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(cfg.Dashboard.DataDir, 0755))
	require.NoError(t, os.MkdirAll(cfg.Report.InputDir, 0755))
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	app, err := New(testConfig(t), logger, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	return app
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeDailyBars(t *testing.T, dir, ticker string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + 5*float64(i%7) + float64(i)/10
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"), c-1, c+1, c-2, c, 1000+i)
	}
	writeFile(t, filepath.Join(dir, ticker+".csv"), b.String())
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/health", http.StatusOK},
		{"version", http.MethodGet, "/api/version", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/nope", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/api/health", http.StatusMethodNotAllowed},
		{"unknown ticker", http.MethodGet, "/api/v1/dashboard/ZZZ", http.StatusNotFound},
		{"invalid ticker", http.MethodGet, "/api/v1/dashboard/bad$tick", http.StatusBadRequest},
		{"no run yet", http.MethodGet, "/api/v1/reports/current", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "http://localhost:8080", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDashboardEndpoint(t *testing.T) {
	app := newTestApp(t)
	writeDailyBars(t, app.Config.Dashboard.DataDir, "ABC", 80)

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Ticker     string                   `json:"ticker"`
		Bars       []map[string]interface{} `json:"bars"`
		Regression *struct {
			N int `json:"n"`
		} `json:"regression"`
		Centroids []map[string]interface{} `json:"centroids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ABC", body.Ticker)
	assert.Len(t, body.Bars, 80)
	assert.Nil(t, body.Bars[0]["returns"])
	require.NotNil(t, body.Regression)
	assert.Equal(t, 31, body.Regression.N, "rows with MA50 and volatility")
	assert.Len(t, body.Centroids, 3)
	assert.Nil(t, body.Bars[0]["spread_hl"])
	assert.Contains(t, body.Bars[1], "spread_hl")

	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"tickers":["ABC"]}`, rec.Body.String())
}

func submitReport(t *testing.T, h http.Handler, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

func TestReportEndpointWritesWorkbook(t *testing.T) {
	app := newTestApp(t)
	writeFile(t, filepath.Join(app.Config.Report.InputDir, "ticks.csv"), tickCSV)

	status, body := submitReport(t, app.Router, `{"source":"ticks.csv"}`)
	require.Equal(t, http.StatusAccepted, status, body)
	runID := body["run_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Jobs.Wait(ctx))

	assert.FileExists(t, filepath.Join(app.Config.Report.OutputDir, "report.xlsx"))

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap events.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, runID, snap.RunID)
	assert.Equal(t, events.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
}

func TestReportEndpointCSVBundle(t *testing.T) {
	app := newTestApp(t)
	writeFile(t, filepath.Join(app.Config.Report.InputDir, "ticks.csv"), tickCSV)
	out := filepath.Join(app.Config.Report.OutputDir, "runs", "bundle")

	status, body := submitReport(t, app.Router,
		`{"source":"ticks.csv","output":"runs/bundle","format":"csv","freq":"30s"}`)
	require.Equal(t, http.StatusAccepted, status, body)
	require.NoError(t, app.Jobs.Wait(context.Background()))

	assert.FileExists(t, filepath.Join(out, "resampled.csv"))
	assert.FileExists(t, filepath.Join(out, "heatmap.csv"))
}

func TestReportEndpointConfinesPaths(t *testing.T) {
	app := newTestApp(t)
	writeFile(t, filepath.Join(app.Config.Report.InputDir, "ticks.csv"), tickCSV)
	outside := filepath.Join(filepath.Dir(app.Config.Report.OutputDir), "clobber.xlsx")

	for _, body := range []string{
		`{"source":"/etc/passwd"}`,
		`{"source":"../ticks/ticks.csv"}`,
		`{"source":"ticks.csv","output":"../clobber.xlsx"}`,
		fmt.Sprintf(`{"source":"ticks.csv","output":%q}`, outside),
	} {
		status, decoded := submitReport(t, app.Router, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, "INVALID_REQUEST", decoded["error_code"], body)
	}

	_, ok := app.Jobs.Last()
	assert.False(t, ok, "no run was started")
	assert.NoFileExists(t, outside)
}

func TestReportEndpointFailedRun(t *testing.T) {
	app := newTestApp(t)

	status, _ := submitReport(t, app.Router, `{"source":"missing.csv"}`)
	require.Equal(t, http.StatusAccepted, status)
	require.NoError(t, app.Jobs.Wait(context.Background()))

	last, ok := app.Jobs.Last()
	require.True(t, ok)
	assert.Equal(t, events.StatusFailed, last.Status)
	assert.NotEmpty(t, last.Error)
}

func TestWebsocketStreamsRunSnapshots(t *testing.T) {
	app := newTestApp(t)
	app.WebSocketHub.Start()
	t.Cleanup(app.WebSocketHub.Stop)

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg events.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.MessageTypeConnect, msg.Type)

	writeFile(t, filepath.Join(app.Config.Report.InputDir, "ticks.csv"), tickCSV)
	resp, err := http.Post(srv.URL+"/api/v1/reports", "application/json",
		strings.NewReader(`{"source":"ticks.csv"}`))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	for {
		var snapMsg struct {
			Type events.MessageType `json:"type"`
			Data events.RunSnapshot `json:"data"`
		}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
		require.NoError(t, conn.ReadJSON(&snapMsg))
		if snapMsg.Type != events.MessageTypeRunSnapshot {
			continue
		}
		if snapMsg.Data.IsTerminal() {
			assert.Equal(t, events.StatusCompleted, snapMsg.Data.Status)
			break
		}
	}
}

func TestStartStop(t *testing.T) {
	app := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx, cancel, ln))

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Stop(context.Background()))
	assert.NoError(t, ctx.Err(), "a clean shutdown does not cancel")
}

func TestNewDuplicateRegistration(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	reg := prometheus.NewRegistry()

	_, err := New(testConfig(t), logger, WithRegisterer(reg))
	require.NoError(t, err)

	_, err = New(testConfig(t), logger, WithRegisterer(reg))
	assert.Error(t, err)
}
