package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/moe-regress/harness/trace"
)

// ErrNoLossRecords is returned by a strict Runner when a child produced no
// loss lines at all.
var ErrNoLossRecords = errors.New("no loss records in output")

// RunnerConfig groups Runner behavior.
type RunnerConfig struct {
	Launcher Launcher
	Strict   bool              // zero loss records is an error instead of an empty result
	Trace    trace.TraceConfig // per-line trace options
	Timeout  time.Duration     // per-scenario limit; 0 waits for the child indefinitely
}

// Runner launches scenarios and scrapes their output.
type Runner struct {
	source LineSource
	config RunnerConfig
}

// NewRunner creates a Runner reading output from source.
func NewRunner(source LineSource, config RunnerConfig) *Runner {
	return &Runner{source: source, config: config}
}

// RunResult is everything scraped from one child process.
type RunResult struct {
	Scenario     Scenario
	Command      Command
	Observations []Observation // recognized records in emission order
	Trace        *trace.RunTrace
	ExitCode     int // 0 unless the child exited non-zero
}

// Losses returns the loss values rounded to the scenario's precision.
func (r *RunResult) Losses() []float64 {
	digits := r.Scenario.Precision.Digits()
	out := make([]float64, 0, len(r.Observations))
	for _, o := range r.Observations {
		if o.Kind == KindLoss {
			out = append(out, RoundLoss(o.Loss, digits))
		}
	}
	return out
}

// StepTimes returns the step times of all summary records.
func (r *RunResult) StepTimes() []string {
	var out []string
	for _, o := range r.Observations {
		if o.Kind == KindSummary {
			out = append(out, o.StepTime)
		}
	}
	return out
}

// Run executes s to completion and classifies every stdout line.
//
// Unrecognized lines are skipped and counted in the trace. A child that
// exits non-zero is not an error here: whatever it printed is returned with
// ExitCode set and the loss comparison decides the outcome. Launch and read
// failures are returned as errors.
func (r *Runner) Run(ctx context.Context, s Scenario) (*RunResult, error) {
	cmd, err := r.config.Launcher.Command(s)
	if err != nil {
		return nil, err
	}
	result := &RunResult{
		Scenario: s,
		Command:  cmd,
		Trace:    trace.NewRunTrace(r.config.Trace),
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	logrus.Debugf("launching %s", cmd)
	err = r.source.Stream(ctx, cmd, func(line string) {
		obs := ClassifyLine(line)
		result.Trace.RecordLine(obs.Kind.String(), line)
		if obs.Kind == KindUnrecognized {
			logrus.Tracef("skip: %s", line)
			return
		}
		result.Observations = append(result.Observations, obs)
	})

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.Code
		logrus.Warnf("%s exited with status %d", s, exitErr.Code)
	case err != nil:
		return result, fmt.Errorf("run %s: %w", s, err)
	}

	summary := trace.Summarize(result.Trace)
	if summary.UnrecognizedLines > 0 {
		logrus.Debugf("%s: skipped %d of %d output lines", s, summary.UnrecognizedLines, summary.TotalLines)
	}
	if summary.LossLines == 0 {
		if r.config.Strict {
			return result, fmt.Errorf("run %s: %w (%d lines read)", s, ErrNoLossRecords, summary.TotalLines)
		}
		logrus.Warnf("%s: no loss records in %d output lines", s, summary.TotalLines)
	}
	return result, nil
}
