// Package callback posts run summaries to an HTTP webhook.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// Run statuses reported in a Summary.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Reporter sends a summary callback after every run.
type Reporter struct {
	url      string
	apiKey   string
	logger   *zap.SugaredLogger
	client   *http.Client
	sequence int64 // Monotonic counter for idempotency
}

// Summary is the webhook payload.
type Summary struct {
	RunID      string              `json:"run_id"`
	Source     string              `json:"source"`
	Sequence   int                 `json:"sequence"`
	Status     string              `json:"status"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Total      int                 `json:"total"`
	DurationMS int64               `json:"duration_ms"`
	Outcomes   []ControllerOutcome `json:"outcomes"`
	NextRun    string              `json:"next_run,omitempty"`
	Timestamp  string              `json:"timestamp"`
}

// ControllerOutcome is one controller line of a Summary.
type ControllerOutcome struct {
	Controller   string `json:"controller"`
	Succeeded    bool   `json:"succeeded"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ErrorClass   string `json:"error_class,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewReporter creates a new callback reporter.
func NewReporter(url, apiKey string, logger *zap.SugaredLogger) *Reporter {
	return &Reporter{
		url:    url,
		apiKey: apiKey,
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends the run summary.
func (r *Reporter) Notify(ctx context.Context, result model.RunResult) error {
	seq := atomic.AddInt64(&r.sequence, 1)
	return r.sendCallback(ctx, buildSummary(result, int(seq), time.Now()))
}

// Sequence returns the number of summaries sent so far.
func (r *Reporter) Sequence() int {
	return int(atomic.LoadInt64(&r.sequence))
}

func status(result model.RunResult) string {
	switch {
	case result.OK():
		return StatusCompleted
	case result.Succeeded > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func buildSummary(result model.RunResult, seq int, now time.Time) Summary {
	s := Summary{
		RunID:      result.ID,
		Source:     "unifi-documenter",
		Sequence:   seq,
		Status:     status(result),
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Total:      result.Total(),
		DurationMS: result.Duration().Milliseconds(),
		Outcomes:   make([]ControllerOutcome, 0, len(result.Outcomes)),
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
	if !result.NextRun.IsZero() {
		s.NextRun = result.NextRun.UTC().Format(time.RFC3339)
	}
	for _, o := range result.Outcomes {
		s.Outcomes = append(s.Outcomes, ControllerOutcome{
			Controller:   o.Controller,
			Succeeded:    o.Succeeded,
			ArtifactPath: o.ArtifactPath,
			ErrorClass:   string(o.ErrorClass),
			ErrorMessage: o.Reason,
		})
	}
	return s
}

func (r *Reporter) sendCallback(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warnw("Callback failed", "url", r.url, "error", err)
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		r.logger.Warnw("Callback returned error", "url", r.url, "status", resp.StatusCode)
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Debugw("Callback sent", "url", r.url, "status", resp.StatusCode)
	return nil
}
