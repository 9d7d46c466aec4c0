package model

import "time"

// ErrorClass groups controller failures for reporting.
type ErrorClass string

const (
	ErrorClassConfig         ErrorClass = "config"
	ErrorClassConnection     ErrorClass = "connection"
	ErrorClassAuthentication ErrorClass = "authentication"
	ErrorClassRender         ErrorClass = "render"
	ErrorClassInternal       ErrorClass = "internal"
)

// Outcome is the result of documenting one controller.
type Outcome struct {
	Controller   string        `json:"controller"`
	Succeeded    bool          `json:"succeeded"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	ErrorClass   ErrorClass    `json:"error_class,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// RunResult summarises one pass over every configured controller.
type RunResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	NextRun    time.Time `json:"next_run"`
}

// Duration is the wall time of the run.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Total is the number of controllers processed.
func (r RunResult) Total() int {
	return r.Succeeded + r.Failed
}

// OK reports whether at least one controller ran and none failed.
func (r RunResult) OK() bool {
	return r.Total() > 0 && r.Failed == 0
}
