package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/health"
	"github.com/loryanstrant/unifi-documenter/internal/metrics"
	"github.com/loryanstrant/unifi-documenter/internal/model"
	"github.com/loryanstrant/unifi-documenter/internal/scheduler"
)

type fakeScheduler struct {
	state      scheduler.State
	busy       bool
	next       time.Time
	triggerErr error
	triggered  int
}

func (f *fakeScheduler) State() scheduler.State { return f.state }
func (f *fakeScheduler) Busy() bool             { return f.busy }
func (f *fakeScheduler) NextRun() time.Time     { return f.next }
func (f *fakeScheduler) Trigger() error {
	f.triggered++
	return f.triggerErr
}

type fakeHistory struct {
	result model.RunResult
	ok     bool
}

func (f fakeHistory) LastRun() (model.RunResult, bool) { return f.result, f.ok }

type fakeConnectivity struct {
	seen []config.ControllerConfig
}

func (f *fakeConnectivity) Connectivity(_ context.Context, controllers []config.ControllerConfig) health.ConnectivityReport {
	f.seen = controllers
	return health.ConnectivityReport{
		Controllers: []health.ControllerConnectivity{{Name: "home", Status: health.Reachable}},
		Summary:     health.ConnectivitySummary{Total: 1, Reachable: 1},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone:     "UTC",
		ScheduleTime: "02:00",
		Output:       config.OutputConfig{Dir: "/output", Format: config.FormatMarkdown},
		Controllers:  []config.ControllerConfig{{Name: "home", Host: "10.0.0.1", APIKey: "k"}},
	}
}

func newTestServer(sched *fakeScheduler, history fakeHistory, conn *fakeConnectivity) *Server {
	return New(testConfig(), "1.0.0", sched, history, conn, metrics.New().Handler(), zap.NewNop().Sugar())
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeScheduler{}, fakeHistory{}, &fakeConnectivity{})

	w := do(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Equal(t, "1.0.0", report.Version)
}

func TestHealthUnhealthy(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Format = "pdf"
	s := New(cfg, "1.0.0", &fakeScheduler{}, fakeHistory{}, &fakeConnectivity{}, nil, zap.NewNop().Sugar())

	w := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReady(t *testing.T) {
	sched := &fakeScheduler{state: scheduler.StateIdle}
	s := newTestServer(sched, fakeHistory{}, &fakeConnectivity{})

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/ready").Code)

	sched.state = scheduler.StateRunning
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/ready").Code)

	sched.state = scheduler.StateStopped
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/ready").Code)
}

func TestStatus(t *testing.T) {
	next := time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC)
	last := model.RunResult{
		ID:        "run-1",
		Succeeded: 1,
		Outcomes:  []model.Outcome{{Controller: "home", Succeeded: true, ArtifactPath: "/output/unifi-home.md"}},
	}
	s := newTestServer(
		&fakeScheduler{state: scheduler.StateRunning, busy: true, next: next},
		fakeHistory{result: last, ok: true},
		&fakeConnectivity{},
	)

	w := do(t, s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.State)
	assert.True(t, resp.Busy)
	assert.Equal(t, 1, resp.Controllers)
	require.NotNil(t, resp.NextRun)
	assert.True(t, next.Equal(*resp.NextRun))
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "run-1", resp.LastRun.ID)
}

func TestStatusBeforeFirstRun(t *testing.T) {
	s := newTestServer(&fakeScheduler{}, fakeHistory{}, &fakeConnectivity{})

	w := do(t, s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "last_run")
	assert.NotContains(t, body, "next_run")
	assert.Equal(t, "idle", body["state"])
}

func TestRunTrigger(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"coalesced", scheduler.ErrAlreadyRunning, http.StatusConflict},
		{"stopped", scheduler.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{state: scheduler.StateRunning, triggerErr: tt.err}
			s := newTestServer(sched, fakeHistory{}, &fakeConnectivity{})

			w := do(t, s, http.MethodPost, "/api/v1/run")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, 1, sched.triggered)
		})
	}
}

func TestConnectivity(t *testing.T) {
	conn := &fakeConnectivity{}
	s := newTestServer(&fakeScheduler{}, fakeHistory{}, conn)

	w := do(t, s, http.MethodGet, "/api/v1/connectivity")
	require.Equal(t, http.StatusOK, w.Code)

	var report health.ConnectivityReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.Reachable)
	require.Len(t, conn.seen, 1)
	assert.Equal(t, "home", conn.seen[0].Name)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(&fakeScheduler{}, fakeHistory{}, &fakeConnectivity{})

	w := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unifi_documenter_run_duration_seconds")
}
