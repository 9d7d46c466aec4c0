package orchestrator

import (
	"bytes"
	"fmt"
	"time"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// statusReport renders the plain-text run summary.
func statusReport(r model.RunResult) []byte {
	var b bytes.Buffer

	b.WriteString("UniFi Documentation Generation Status\n")
	b.WriteString("=====================================\n\n")
	fmt.Fprintf(&b, "Run ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Start Time: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "End Time: %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %.2f seconds\n", r.Duration().Seconds())
	fmt.Fprintf(&b, "Controllers Successful: %d\n", r.Succeeded)
	fmt.Fprintf(&b, "Controllers Failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "Total Controllers: %d\n", r.Total())

	if len(r.Outcomes) > 0 {
		b.WriteString("\nControllers:\n")
		for _, o := range r.Outcomes {
			if o.Succeeded {
				fmt.Fprintf(&b, "- %s: OK %s (%.2fs)\n", o.Controller, o.ArtifactPath, o.Duration.Seconds())
				continue
			}
			fmt.Fprintf(&b, "- %s: FAILED [%s] %s\n", o.Controller, o.ErrorClass, o.Reason)
		}
	}

	next := "not scheduled"
	if !r.NextRun.IsZero() {
		next = r.NextRun.Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "\nNext Scheduled Run: %s\n", next)
	return b.Bytes()
}
