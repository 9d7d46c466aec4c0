// Package aggregator gathers one controller's data into a Snapshot.
package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loryanstrant/unifi-documenter/internal/controller"
	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// DefaultConcurrency bounds concurrent resource fetches per site.
const DefaultConcurrency = 4

// FailureRecorder counts resource fetches that were absorbed as empty.
type FailureRecorder interface {
	FetchFailed(controller, resource string)
}

// Aggregator runs the data-gathering sequence for a controller.
type Aggregator struct {
	concurrency int
	failures    FailureRecorder
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// New creates an Aggregator. failures may be nil.
func New(concurrency int, failures FailureRecorder, logger *zap.SugaredLogger) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{
		concurrency: concurrency,
		failures:    failures,
		logger:      logger,
		now:         time.Now,
	}
}

// defaultSite stands in for the site list when it cannot be read.
func defaultSite() model.Record {
	return model.Record{"name": "default", "desc": "Default Site"}
}

// Collect gathers system info, sites and every per-site collection from an
// authenticated client. It never fails: unreadable parts are recorded as
// absent or empty and logged.
func (a *Aggregator) Collect(ctx context.Context, client controller.Client, identity model.ControllerInfo) *model.Snapshot {
	log := a.logger.With("controller", identity.Name)

	if identity.GeneratedAt.IsZero() {
		identity.GeneratedAt = a.now()
	}
	if identity.APIVersion == "" {
		identity.APIVersion = client.APIVersion()
	}

	snap := &model.Snapshot{Controller: identity}

	info, err := client.SystemInfo(ctx)
	if err != nil {
		log.Warnw("Failed to get system info", "error", err)
		a.recordFailure(identity.Name, "system_info")
	} else {
		snap.SystemInfo = info
	}

	sites, err := client.ListSites(ctx)
	if err != nil {
		log.Warnw("Failed to list sites, trying default site", "error", err)
		a.recordFailure(identity.Name, "sites")
		sites = []model.Record{defaultSite()}
	}

	snap.Sites = make([]model.SiteSnapshot, 0, len(sites))
	for _, site := range sites {
		snap.Sites = append(snap.Sites, a.collectSite(ctx, client, identity.Name, site))
	}

	log.Infow("Collected controller data", "sites", len(snap.Sites), "api_version", identity.APIVersion)
	return snap
}

// collectSite fetches every resource kind for one site concurrently. Each
// goroutine owns one slot of the collections array.
func (a *Aggregator) collectSite(ctx context.Context, client controller.Client, controllerName string, info model.Record) model.SiteSnapshot {
	siteID := info.Text("name", "default")
	log := a.logger.With("controller", controllerName, "site", siteID)

	var collections [model.NumResourceKinds][]model.Record

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, kind := range model.ResourceKinds() {
		kind := kind
		g.Go(func() error {
			records, err := client.Fetch(gctx, kind, siteID)
			if err != nil {
				log.Warnw("Failed to fetch resource", "resource", kind.String(), "error", err)
				a.recordFailure(controllerName, kind.String())
				return nil
			}
			collections[kind] = records
			return nil
		})
	}
	_ = g.Wait() // goroutines never fail

	site := model.NewSiteSnapshot(info, collections)
	log.Debugw("Collected site", "devices", len(site.Devices), "clients", len(site.Clients))
	return site
}

func (a *Aggregator) recordFailure(controllerName, resource string) {
	if a.failures != nil {
		a.failures.FetchFailed(controllerName, resource)
	}
}
