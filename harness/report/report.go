// Package report renders suite results for humans and CI.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/inference-sim/moe-regress/harness"
)

// Report is the outcome of one suite run.
type Report struct {
	RunID     string               `json:"run_id"`
	GPU       string               `json:"gpu"`
	StartedAt time.Time            `json:"started_at"`
	Duration  string               `json:"duration"`
	Passed    bool                 `json:"passed"`
	Failed    int                  `json:"failed"`
	Cases     []harness.CaseResult `json:"cases"`
}

// New assembles a Report with a fresh run ID.
func New(gpu string, startedAt time.Time, cases []harness.CaseResult) Report {
	r := Report{
		RunID:     uuid.NewString(),
		GPU:       gpu,
		StartedAt: startedAt.UTC(),
		Duration:  time.Since(startedAt).Round(time.Millisecond).String(),
		Passed:    true,
		Cases:     cases,
	}
	for _, c := range cases {
		if !c.Passed {
			r.Passed = false
			r.Failed++
		}
	}
	return r
}

// ExitCode is 0 when every case passed and 1 otherwise.
func (r Report) ExitCode() int {
	if r.Passed {
		return 0
	}
	return 1
}
