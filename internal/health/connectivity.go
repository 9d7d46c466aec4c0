package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/controller"
)

const (
	Reachable   = "reachable"
	Unreachable = "unreachable"
	AuthFailed  = "auth_failed"
)

// DefaultProbeTimeout bounds the TCP reachability probe.
const DefaultProbeTimeout = 5 * time.Second

// ConnectivityReport is the result of contacting every controller.
type ConnectivityReport struct {
	Timestamp   time.Time                `json:"timestamp"`
	Controllers []ControllerConnectivity `json:"controllers"`
	Summary     ConnectivitySummary      `json:"summary"`
}

// ControllerConnectivity is the result for one controller.
type ControllerConnectivity struct {
	Name           string  `json:"name"`
	Host           string  `json:"host"`
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms,omitempty"`
	APIVersion     string  `json:"api_version,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// ConnectivitySummary counts controllers per status.
type ConnectivitySummary struct {
	Total       int `json:"total"`
	Reachable   int `json:"reachable"`
	Unreachable int `json:"unreachable"`
	AuthFailed  int `json:"auth_failed"`
}

// AllReachable reports whether at least one controller was checked and every
// controller authenticated.
func (r ConnectivityReport) AllReachable() bool {
	return r.Summary.Total > 0 && r.Summary.Reachable == r.Summary.Total
}

// Checker contacts controllers and classifies how far it got.
type Checker struct {
	factory     controller.Factory
	probe       ProbeFunc
	timeout     time.Duration
	concurrency int
	logger      *zap.SugaredLogger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithProbe replaces the TCP probe.
func WithProbe(p ProbeFunc) CheckerOption {
	return func(c *Checker) {
		c.probe = p
	}
}

// WithProbeTimeout sets the TCP probe timeout.
func WithProbeTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChecker creates a connectivity checker building clients with factory.
func NewChecker(factory controller.Factory, logger *zap.SugaredLogger, opts ...CheckerOption) *Checker {
	c := &Checker{
		factory:     factory,
		probe:       TCPProbe,
		timeout:     DefaultProbeTimeout,
		concurrency: 4,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connectivity probes and authenticates against every controller. Results
// keep the order of controllers.
func (c *Checker) Connectivity(ctx context.Context, controllers []config.ControllerConfig) ConnectivityReport {
	report := ConnectivityReport{
		Timestamp:   time.Now().UTC(),
		Controllers: make([]ControllerConnectivity, len(controllers)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, cc := range controllers {
		i, cc := i, cc
		g.Go(func() error {
			report.Controllers[i] = c.check(gctx, cc)
			return nil
		})
	}
	_ = g.Wait()

	for _, cc := range report.Controllers {
		report.Summary.Total++
		switch cc.Status {
		case Reachable:
			report.Summary.Reachable++
		case AuthFailed:
			report.Summary.AuthFailed++
		default:
			report.Summary.Unreachable++
		}
	}
	return report
}

func (c *Checker) check(ctx context.Context, cc config.ControllerConfig) ControllerConnectivity {
	result := ControllerConnectivity{
		Name:   cc.Name,
		Host:   cc.Host,
		Status: Unreachable,
	}
	logger := c.logger.With(cc.LogFields()...)

	if err := cc.Validate(); err != nil {
		result.Error = err.Error()
		return result
	}

	addr, err := cc.Address()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	if _, err := c.probe(ctx, addr, c.timeout); err != nil {
		logger.Debugw("Controller port unreachable", "address", addr, "error", err)
		result.Error = err.Error()
		return result
	}

	client, err := c.factory(cc, logger)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	err = client.Authenticate(ctx)
	result.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		var authErr *controller.AuthenticationError
		if errors.As(err, &authErr) {
			result.Status = AuthFailed
		}
		result.Error = err.Error()
		logger.Warnw("Connectivity check failed", "status", result.Status, "error", err)
		return result
	}

	result.Status = Reachable
	result.APIVersion = client.APIVersion()
	_ = client.Disconnect(ctx)
	return result
}
