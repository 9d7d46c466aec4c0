// Package orchestrator runs one documentation pass over every configured
// controller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/aggregator"
	"github.com/loryanstrant/unifi-documenter/internal/artifact"
	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/controller"
	"github.com/loryanstrant/unifi-documenter/internal/metrics"
	"github.com/loryanstrant/unifi-documenter/internal/model"
	"github.com/loryanstrant/unifi-documenter/internal/render"
)

// StatusFileName is written to the output directory after every run.
const StatusFileName = "generation-status.txt"

// ErrNoControllers is returned when a run starts with an empty controller list.
var ErrNoControllers = errors.New("no controllers configured")

// Notifier receives the result of every completed run.
type Notifier interface {
	Notify(ctx context.Context, result model.RunResult) error
}

// Orchestrator documents controllers one at a time and isolates failures.
type Orchestrator struct {
	controllers []config.ControllerConfig
	factory     controller.Factory
	aggregator  *aggregator.Aggregator
	store       *artifact.Store
	renderer    render.Renderer
	notifiers   []Notifier
	metrics     *metrics.Metrics
	logger      *zap.SugaredLogger
	now         func() time.Time
	nextRun     func(time.Time) time.Time

	mu   sync.RWMutex
	last *model.RunResult
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifiers adds run notifiers.
func WithNotifiers(n ...Notifier) Option {
	return func(o *Orchestrator) {
		o.notifiers = append(o.notifiers, n...)
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = clock
	}
}

// WithNextRun supplies the next scheduled fire time for the status file.
func WithNextRun(next func(time.Time) time.Time) Option {
	return func(o *Orchestrator) {
		o.nextRun = next
	}
}

// New creates an Orchestrator.
func New(
	controllers []config.ControllerConfig,
	factory controller.Factory,
	agg *aggregator.Aggregator,
	store *artifact.Store,
	renderer render.Renderer,
	logger *zap.SugaredLogger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		controllers: controllers,
		factory:     factory,
		aggregator:  agg,
		store:       store,
		renderer:    renderer,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LastRun returns the most recent completed run.
func (o *Orchestrator) LastRun() (model.RunResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return model.RunResult{}, false
	}
	return *o.last, true
}

// Controllers returns the configured controllers.
func (o *Orchestrator) Controllers() []config.ControllerConfig {
	return o.controllers
}

// Run documents every controller. A failing controller is recorded in the
// result and never stops the others. The only error is ErrNoControllers.
func (o *Orchestrator) Run(ctx context.Context) (model.RunResult, error) {
	result := model.RunResult{
		ID:        uuid.New().String(),
		StartedAt: o.now(),
		Outcomes:  make([]model.Outcome, 0, len(o.controllers)),
	}

	if len(o.controllers) == 0 {
		o.logger.Errorw("No controllers configured", "run_id", result.ID)
		result.FinishedAt = o.now()
		o.metrics.RunFinished(false, result.Duration())
		return result, ErrNoControllers
	}

	o.logger.Infow("Starting documentation run",
		"run_id", result.ID,
		"controllers", len(o.controllers),
	)

	// Artifact file name to the controller that owns it in this run.
	owners := make(map[string]string, len(o.controllers))
	for _, cc := range o.controllers {
		outcome, size := o.documentController(ctx, cc, owners)
		if outcome.Succeeded {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
		o.metrics.ControllerFinished(outcome.Controller, outcome.Succeeded, string(outcome.ErrorClass), o.now(), size)
	}

	result.FinishedAt = o.now()
	if o.nextRun != nil {
		result.NextRun = o.nextRun(result.FinishedAt)
	}

	if _, err := o.store.WriteFile(StatusFileName, statusReport(result)); err != nil {
		o.logger.Warnw("Failed to write status file", "error", err)
	}

	for _, n := range o.notifiers {
		if err := n.Notify(ctx, result); err != nil {
			o.logger.Warnw("Failed to send run notification", "run_id", result.ID, "error", err)
		}
	}

	o.metrics.RunFinished(result.OK(), result.Duration())

	o.mu.Lock()
	last := result
	o.last = &last
	o.mu.Unlock()

	o.logger.Infow("Documentation run completed",
		"run_id", result.ID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration().String(),
	)
	return result, nil
}

// documentController runs the full sequence for one controller and returns
// its outcome and artifact size.
func (o *Orchestrator) documentController(ctx context.Context, cc config.ControllerConfig, owners map[string]string) (outcome model.Outcome, size int) {
	start := o.now()
	log := o.logger.With(cc.LogFields()...)
	outcome.Controller = cc.Name

	fail := func(err error) (model.Outcome, int) {
		outcome.ErrorClass = Classify(err)
		outcome.Reason = err.Error()
		outcome.Duration = o.now().Sub(start)
		log.Errorw("Failed to generate documentation",
			"error", err,
			"error_class", string(outcome.ErrorClass),
		)
		return outcome, 0
	}

	defer func() {
		if r := recover(); r != nil {
			outcome, size = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := cc.Validate(); err != nil {
		return fail(err)
	}

	name := cc.FileName()
	if owner, taken := owners[name]; taken {
		return fail(&config.ConfigError{
			Controller: cc.Name,
			Field:      "name",
			Msg:        fmt.Sprintf("file name %q is already used by controller %q", name, owner),
		})
	}
	owners[name] = cc.Name
	format := o.renderer.Format()

	backup, err := o.store.Backup(name, format)
	if err != nil {
		return fail(err)
	}
	if backup != "" {
		log.Debugw("Backed up previous artifact", "path", backup)
	}

	client, err := o.factory(cc, o.logger)
	if err != nil {
		return fail(err)
	}
	if err := client.Authenticate(ctx); err != nil {
		return fail(err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	identity := model.ControllerInfo{
		Name:        cc.Name,
		Host:        cc.Host,
		Port:        cc.Port,
		APIVersion:  client.APIVersion(),
		GeneratedAt: o.now(),
	}
	snap := o.aggregator.Collect(ctx, client, identity)

	art, err := o.store.Write(name, o.renderer, snap)
	if err != nil {
		return fail(err)
	}

	if removed, err := o.store.Prune(name, format); err != nil {
		log.Warnw("Failed to prune backups", "error", err)
	} else if len(removed) > 0 {
		log.Debugw("Pruned old backups", "removed", len(removed))
	}

	outcome.Succeeded = true
	outcome.ArtifactPath = art.Path
	outcome.Duration = o.now().Sub(start)
	log.Infow("Successfully generated documentation",
		"path", art.Path,
		"sites", len(snap.Sites),
		"duration", outcome.Duration.String(),
	)
	return outcome, art.Size
}

// Classify maps a controller failure to its reporting class.
func Classify(err error) model.ErrorClass {
	var (
		cfgErr  *config.ConfigError
		authErr *controller.AuthenticationError
		connErr *controller.ConnectionError
		artErr  *artifact.Error
	)
	switch {
	case errors.As(err, &cfgErr):
		return model.ErrorClassConfig
	case errors.As(err, &authErr):
		return model.ErrorClassAuthentication
	case errors.As(err, &connErr):
		return model.ErrorClassConnection
	case errors.As(err, &artErr):
		return model.ErrorClassRender
	default:
		return model.ErrorClassInternal
	}
}
