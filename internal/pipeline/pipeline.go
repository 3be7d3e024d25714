// Package pipeline sequences release stages strictly in order and reports
// a per-stage verdict. The first failure halts the run; later stages are
// never started.
package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Status is a stage verdict.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// Stage is one sequential step of a release run.
type Stage struct {
	// Name identifies the stage in logs and reports.
	Name string
	// Run does the work. It must honor ctx cancellation.
	Run func(ctx context.Context) error
	// Skip marks the stage as intentionally not run this time;
	// SkipReason says why. Skipped stages do not fail the run.
	Skip       bool
	SkipReason string
}

// StageResult records the verdict of one stage.
type StageResult struct {
	Stage    string
	Status   Status
	Reason   string
	Duration time.Duration
}

// Report is the outcome of a run: one result per stage reached, in
// execution order. Stages after a failure do not appear.
type Report struct {
	Results []StageResult
}

// Passed reports whether no reached stage failed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFail {
			return false
		}
	}
	return true
}

// Failure returns the failing stage result, or nil when the run passed.
func (r Report) Failure() *StageResult {
	for i := range r.Results {
		if r.Results[i].Status == StatusFail {
			return &r.Results[i]
		}
	}
	return nil
}

// Runner executes stages.
type Runner struct {
	logger *slog.Logger
}

// NewRunner constructs a Runner. A nil logger falls back to slog.Default.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the stages in order and stops at the first failure. A
// canceled context fails the next stage without starting it.
func (r *Runner) Run(ctx context.Context, stages []Stage) Report {
	var report Report
	for _, stage := range stages {
		if stage.Skip {
			r.logger.Info("stage skipped", "stage", stage.Name, "reason", stage.SkipReason)
			report.Results = append(report.Results, StageResult{
				Stage:  stage.Name,
				Status: StatusSkipped,
				Reason: stage.SkipReason,
			})
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, StageResult{
				Stage:  stage.Name,
				Status: StatusFail,
				Reason: err.Error(),
			})
			return report
		}

		r.logger.Info("stage starting", "stage", stage.Name)
		start := time.Now()
		err := stage.Run(ctx)
		elapsed := time.Since(start).Round(time.Millisecond)

		if err != nil {
			r.logger.Error("stage failed", "stage", stage.Name, "duration", elapsed, "error", err)
			report.Results = append(report.Results, StageResult{
				Stage:    stage.Name,
				Status:   StatusFail,
				Reason:   err.Error(),
				Duration: elapsed,
			})
			return report
		}

		r.logger.Info("stage passed", "stage", stage.Name, "duration", elapsed)
		report.Results = append(report.Results, StageResult{
			Stage:    stage.Name,
			Status:   StatusPass,
			Duration: elapsed,
		})
	}
	return report
}
