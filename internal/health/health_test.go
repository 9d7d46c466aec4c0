package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/controller"
	"github.com/loryanstrant/unifi-documenter/internal/model"
)

func validConfig(controllers ...config.ControllerConfig) *config.Config {
	return &config.Config{
		Timezone:     "UTC",
		ScheduleTime: "02:00",
		Output:       config.OutputConfig{Dir: "/output", Format: config.FormatMarkdown},
		Controllers:  controllers,
	}
}

func TestCheckHealthy(t *testing.T) {
	report := Check(validConfig(config.ControllerConfig{Name: "home", Host: "10.0.0.1", APIKey: "k"}), "1.2.3")

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.Empty(t, report.Issues)
	require.Len(t, report.Controllers, 1)
	assert.Equal(t, ControllerConfigured, report.Controllers[0].Status)
	assert.True(t, report.Healthy())
}

func TestCheckDegradedByController(t *testing.T) {
	report := Check(validConfig(
		config.ControllerConfig{Name: "home", Host: "10.0.0.1", APIKey: "k"},
		config.ControllerConfig{Name: "office", Host: "10.0.0.2"},
	), "dev")

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, []string{"Controller office is misconfigured"}, report.Issues)
	assert.Equal(t, ControllerMisconfigured, report.Controllers[1].Status)
	assert.NotEmpty(t, report.Controllers[1].Error)
	assert.True(t, report.Healthy())
}

func TestCheckCollidingFileNames(t *testing.T) {
	report := Check(validConfig(
		config.ControllerConfig{Name: "home lab", Host: "10.0.0.1", APIKey: "k"},
		config.ControllerConfig{Name: "home/lab", Host: "10.0.0.2", APIKey: "k"},
	), "dev")

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, ControllerConfigured, report.Controllers[0].Status)
	assert.Equal(t, ControllerMisconfigured, report.Controllers[1].Status)
	assert.Contains(t, report.Controllers[1].Error, `"home_lab"`)
	assert.Equal(t, []string{"Controller home/lab shares its file name with home lab"}, report.Issues)
}

func TestCheckNoControllers(t *testing.T) {
	report := Check(validConfig(), "dev")

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Issues, "No controllers configured")
	assert.NotNil(t, report.Controllers)
}

func TestCheckUnhealthy(t *testing.T) {
	cfg := validConfig(config.ControllerConfig{Name: "home", Host: "10.0.0.1", APIKey: "k"})
	cfg.Timezone = "Mars/Olympus"

	report := Check(cfg, "dev")

	assert.Equal(t, StatusUnhealthy, report.Status)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "Configuration validation failed")
	assert.False(t, report.Healthy())
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	_, err = TCPProbe(context.Background(), addr, time.Second)
	assert.NoError(t, err)

	require.NoError(t, ln.Close())
	_, err = TCPProbe(context.Background(), addr, time.Second)
	assert.Error(t, err)
}

type stubClient struct {
	authErr error
}

func (s *stubClient) Authenticate(context.Context) error { return s.authErr }
func (s *stubClient) SystemInfo(context.Context) (model.Record, error) {
	return model.Record{}, nil
}
func (s *stubClient) ListSites(context.Context) ([]model.Record, error) { return nil, nil }
func (s *stubClient) Fetch(context.Context, model.ResourceKind, string) ([]model.Record, error) {
	return nil, nil
}
func (s *stubClient) Disconnect(context.Context) error { return nil }
func (s *stubClient) APIVersion() string               { return "classic" }

func TestConnectivityClassification(t *testing.T) {
	clients := map[string]controller.Client{
		"ok":     &stubClient{},
		"denied": &stubClient{authErr: &controller.AuthenticationError{Controller: "denied", Versions: []string{"unifi-os"}}},
		"down":   &stubClient{authErr: &controller.ConnectionError{Controller: "down", Err: errors.New("refused")}},
	}
	factory := func(cc config.ControllerConfig, _ *zap.SugaredLogger) (controller.Client, error) {
		return clients[cc.Name], nil
	}
	probe := func(_ context.Context, address string, _ time.Duration) (time.Duration, error) {
		if address == "10.0.0.9:443" {
			return 0, errors.New("connection refused")
		}
		return time.Millisecond, nil
	}
	checker := NewChecker(factory, zap.NewNop().Sugar(), WithProbe(probe))

	report := checker.Connectivity(context.Background(), []config.ControllerConfig{
		{Name: "ok", Host: "10.0.0.1", APIKey: "k"},
		{Name: "denied", Host: "10.0.0.2", APIKey: "k"},
		{Name: "down", Host: "10.0.0.3", APIKey: "k"},
		{Name: "closed", Host: "10.0.0.9", APIKey: "k"},
		{Name: "broken", Host: "10.0.0.4"},
	})

	statuses := make([]string, len(report.Controllers))
	for i, c := range report.Controllers {
		statuses[i] = c.Status
	}
	assert.Equal(t, []string{Reachable, AuthFailed, Unreachable, Unreachable, Unreachable}, statuses)
	assert.Equal(t, "classic", report.Controllers[0].APIVersion)
	assert.Empty(t, report.Controllers[0].Error)
	assert.Contains(t, report.Controllers[3].Error, "connection refused")
	assert.Contains(t, report.Controllers[4].Error, "api_key or username/password is required")

	assert.Equal(t, ConnectivitySummary{Total: 5, Reachable: 1, Unreachable: 3, AuthFailed: 1}, report.Summary)
	assert.False(t, report.AllReachable())
}

func TestConnectivityWithoutControllers(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop().Sugar())

	report := checker.Connectivity(context.Background(), nil)

	assert.Empty(t, report.Controllers)
	assert.Equal(t, 0, report.Summary.Total)
	assert.False(t, report.AllReachable())
}

func TestConnectivityAgainstController(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"rc":"ok"},"data":[{"name":"default"}]}`))
	}))
	defer srv.Close()

	opts := controller.Options{Timeout: 2 * time.Second, RetryWait: time.Millisecond}
	checker := NewChecker(controller.NewFactory(opts), zap.NewNop().Sugar())

	report := checker.Connectivity(context.Background(), []config.ControllerConfig{
		{Name: "good", Host: srv.URL, APIKey: "good"},
		{Name: "bad", Host: srv.URL, APIKey: "bad"},
	})

	assert.Equal(t, Reachable, report.Controllers[0].Status)
	assert.Equal(t, "unifi-os", report.Controllers[0].APIVersion)
	assert.Equal(t, AuthFailed, report.Controllers[1].Status)
	assert.Equal(t, 1, report.Summary.AuthFailed)
}
