package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// mockClient implements controller.Client for testing.
type mockClient struct {
	SystemInfoFn func(ctx context.Context) (model.Record, error)
	ListSitesFn  func(ctx context.Context) ([]model.Record, error)
	FetchFn      func(ctx context.Context, kind model.ResourceKind, siteID string) ([]model.Record, error)
}

func (m *mockClient) Authenticate(context.Context) error { return nil }

func (m *mockClient) SystemInfo(ctx context.Context) (model.Record, error) {
	if m.SystemInfoFn != nil {
		return m.SystemInfoFn(ctx)
	}
	return model.Record{"hostname": "udm"}, nil
}

func (m *mockClient) ListSites(ctx context.Context) ([]model.Record, error) {
	if m.ListSitesFn != nil {
		return m.ListSitesFn(ctx)
	}
	return []model.Record{{"name": "default", "desc": "Default"}}, nil
}

func (m *mockClient) Fetch(ctx context.Context, kind model.ResourceKind, siteID string) ([]model.Record, error) {
	if m.FetchFn != nil {
		return m.FetchFn(ctx, kind, siteID)
	}
	return []model.Record{{"kind": kind.String(), "site": siteID}}, nil
}

func (m *mockClient) Disconnect(context.Context) error { return nil }

func (m *mockClient) APIVersion() string { return "unifi-os" }

type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *failureCounter) FetchFailed(_, resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[resource]++
}

func identity() model.ControllerInfo {
	return model.ControllerInfo{Name: "home", Host: "10.0.0.1", Port: 443}
}

func TestCollect(t *testing.T) {
	a := New(0, nil, zap.NewNop().Sugar())
	fixed := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	snap := a.Collect(context.Background(), &mockClient{}, identity())

	assert.Equal(t, "unifi-os", snap.Controller.APIVersion)
	assert.Equal(t, fixed, snap.Controller.GeneratedAt)
	assert.Equal(t, "udm", snap.SystemInfo.Text("hostname", ""))
	require.Len(t, snap.Sites, 1)

	site := snap.Sites[0]
	for _, kind := range model.ResourceKinds() {
		records := site.Collection(kind)
		require.Len(t, records, 1, kind.String())
		assert.Equal(t, kind.String(), records[0]["kind"])
		assert.Equal(t, "default", records[0]["site"])
	}
}

func TestCollectIsolatesFetchFailure(t *testing.T) {
	failures := &failureCounter{}
	a := New(2, failures, zap.NewNop().Sugar())

	client := &mockClient{
		FetchFn: func(_ context.Context, kind model.ResourceKind, _ string) ([]model.Record, error) {
			if kind == model.KindDevices {
				return nil, errors.New("boom")
			}
			return []model.Record{{"kind": kind.String()}}, nil
		},
	}
	snap := a.Collect(context.Background(), client, identity())
	require.Len(t, snap.Sites, 1)

	site := snap.Sites[0]
	assert.NotNil(t, site.Devices)
	assert.Empty(t, site.Devices)
	for _, kind := range model.ResourceKinds() {
		if kind == model.KindDevices {
			continue
		}
		assert.Len(t, site.Collection(kind), 1, kind.String())
	}
	assert.Equal(t, 1, failures.counts["devices"])
}

func TestCollectFallsBackToDefaultSite(t *testing.T) {
	failures := &failureCounter{}
	a := New(0, failures, zap.NewNop().Sugar())

	client := &mockClient{
		ListSitesFn: func(context.Context) ([]model.Record, error) {
			return nil, errors.New("forbidden")
		},
		SystemInfoFn: func(context.Context) (model.Record, error) {
			return nil, errors.New("not found")
		},
	}
	snap := a.Collect(context.Background(), client, identity())

	assert.Nil(t, snap.SystemInfo)
	require.Len(t, snap.Sites, 1)
	assert.Equal(t, "default", snap.Sites[0].ID())
	assert.Equal(t, "Default Site", snap.Sites[0].DisplayName())
	assert.Len(t, snap.Sites[0].Networks, 1)
	assert.Equal(t, 1, failures.counts["sites"])
	assert.Equal(t, 1, failures.counts["system_info"])
}

func TestCollectMultipleSites(t *testing.T) {
	a := New(0, nil, zap.NewNop().Sugar())

	client := &mockClient{
		ListSitesFn: func(context.Context) ([]model.Record, error) {
			return []model.Record{{"name": "a"}, {"name": "b"}}, nil
		},
	}
	snap := a.Collect(context.Background(), client, identity())

	require.Len(t, snap.Sites, 2)
	assert.Equal(t, "a", snap.Sites[0].ID())
	assert.Equal(t, "b", snap.Sites[1].ID())
	assert.Equal(t, "b", snap.Sites[1].Networks[0]["site"])
}

func TestCollectRespectsConcurrencyLimit(t *testing.T) {
	a := New(3, nil, zap.NewNop().Sugar())

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	client := &mockClient{
		FetchFn: func(context.Context, model.ResourceKind, string) ([]model.Record, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil, nil
		},
	}
	snap := a.Collect(context.Background(), client, identity())

	assert.LessOrEqual(t, peak, 3)
	// nil results still become empty collections
	assert.NotNil(t, snap.Sites[0].DPIStats)
}
