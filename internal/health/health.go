// Package health reports whether the documenter is configured to run and
// whether its controllers can be reached.
package health

import (
	"fmt"
	"time"

	"github.com/loryanstrant/unifi-documenter/internal/config"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ControllerConfigured    = "configured"
	ControllerMisconfigured = "misconfigured"
)

// Report describes the service configuration health.
type Report struct {
	Status      string             `json:"status"`
	Version     string             `json:"version"`
	Timestamp   time.Time          `json:"timestamp"`
	Controllers []ControllerHealth `json:"controllers"`
	Issues      []string           `json:"issues"`
}

// ControllerHealth is the configuration state of one controller.
type ControllerHealth struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Healthy reports whether the service can run, possibly with some
// controllers skipped.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy || r.Status == StatusDegraded
}

// Check validates cfg without contacting any controller. Global
// configuration errors make the service unhealthy; misconfigured or missing
// controllers degrade it.
func Check(cfg *config.Config, version string) Report {
	report := Report{
		Status:      StatusHealthy,
		Version:     version,
		Timestamp:   time.Now().UTC(),
		Controllers: []ControllerHealth{},
		Issues:      []string{},
	}

	if err := cfg.Validate(); err != nil {
		report.Status = StatusUnhealthy
		report.Issues = append(report.Issues, fmt.Sprintf("Configuration validation failed: %v", err))
	}

	if len(cfg.Controllers) == 0 {
		report.Issues = append(report.Issues, "No controllers configured")
	}

	owners := make(map[string]string, len(cfg.Controllers))
	for _, cc := range cfg.Controllers {
		ch := ControllerHealth{
			Name:   cc.Name,
			Host:   cc.Host,
			Status: ControllerConfigured,
		}
		if err := cc.Validate(); err != nil {
			ch.Status = ControllerMisconfigured
			ch.Error = err.Error()
			report.Issues = append(report.Issues, fmt.Sprintf("Controller %s is misconfigured", cc.Name))
		} else if owner, taken := owners[cc.FileName()]; taken {
			ch.Status = ControllerMisconfigured
			ch.Error = fmt.Sprintf("file name %q is already used by controller %q", cc.FileName(), owner)
			report.Issues = append(report.Issues, fmt.Sprintf("Controller %s shares its file name with %s", cc.Name, owner))
		} else {
			owners[cc.FileName()] = cc.Name
		}
		report.Controllers = append(report.Controllers, ch)
	}

	if len(report.Issues) > 0 && report.Status == StatusHealthy {
		report.Status = StatusDegraded
	}
	return report
}
