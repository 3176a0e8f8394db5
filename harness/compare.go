package harness

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/moe-regress/harness/trace"
)

// Case kinds reported in CaseResult.Kind.
const (
	CaseKindBaseline = "baseline"
	CaseKindCross    = "cross"
)

// CompareConfig groups Comparator behavior.
type CompareConfig struct {
	ReducedPrefix    int  // leading losses compared for reduced-precision scenarios (default 2)
	WarnUnmatchedGPU bool // log a warning when no step time matches the GPU
}

// DefaultCompareConfig returns the settings the stock suite assumes.
func DefaultCompareConfig() CompareConfig {
	return CompareConfig{ReducedPrefix: 2, WarnUnmatchedGPU: true}
}

// CaseResult is the verdict of one suite case.
type CaseResult struct {
	Name              string             `json:"name"`
	Kind              string             `json:"kind"`
	Scenarios         []Scenario         `json:"scenarios"`
	Passed            bool               `json:"passed"`
	Compared          int                `json:"compared"` // losses compared; 0 = whole sequence
	Expected          []float64          `json:"expected"`
	Actual            []float64          `json:"actual"`
	MismatchIndex     int                `json:"mismatch_index"` // -1 when the sequences agree
	ExpectedStepTimes []StepTimeEntry    `json:"expected_step_times,omitempty"`
	ObservedStepTimes []string           `json:"observed_step_times,omitempty"`
	ExitCodes         []int              `json:"exit_codes"`
	Lines             trace.TraceSummary `json:"lines"`
	Error             string             `json:"error,omitempty"`
}

// Comparator checks scenario runs against a baseline or against each other.
type Comparator struct {
	runner   *Runner
	baseline *Baseline
	gpu      string
	config   CompareConfig
}

// NewComparator creates a Comparator. baseline may be nil when only
// cross-variant cases are run; gpu may be empty when the model is unknown.
func NewComparator(runner *Runner, baseline *Baseline, gpu string, config CompareConfig) *Comparator {
	if config.ReducedPrefix <= 0 {
		config.ReducedPrefix = DefaultCompareConfig().ReducedPrefix
	}
	return &Comparator{runner: runner, baseline: baseline, gpu: gpu, config: config}
}

// EqualLosses compares two sequences exactly and returns the first index at
// which they differ, or -1. A length difference mismatches at the shorter length.
func EqualLosses(a, b []float64) (bool, int) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false, i
		}
	}
	if len(a) != len(b) {
		return false, n
	}
	return true, -1
}

// Prefix returns at most the first n values of xs; n <= 0 returns xs.
func Prefix(xs []float64, n int) []float64 {
	if n <= 0 || n >= len(xs) {
		return xs
	}
	return xs[:n]
}

// comparedLength decides how many losses of a baseline case are compared.
func (c *Comparator) comparedLength(tc *Case) int {
	if tc.Prefix > 0 {
		return tc.Prefix
	}
	if tc.Scenario.Precision.Reduced() {
		return c.config.ReducedPrefix
	}
	return 0
}

// CompareBaseline runs tc.Scenario and checks its losses against the
// baseline record with the same key. Expected step times are logged, never
// asserted.
func (c *Comparator) CompareBaseline(ctx context.Context, tc *Case) CaseResult {
	sc := *tc.Scenario
	res := CaseResult{
		Name:          tc.Name,
		Kind:          CaseKindBaseline,
		Scenarios:     []Scenario{sc},
		MismatchIndex: -1,
	}
	if c.baseline == nil {
		res.Error = "no baseline loaded"
		return res
	}
	rec, err := c.baseline.Lookup(sc.Key())
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.ExpectedStepTimes = rec.MatchStepTimes(c.gpu)
	for _, e := range res.ExpectedStepTimes {
		logrus.Infof("%s: expected step time on %s: %s", tc.Name, e.GPU, e.Value)
	}
	if len(res.ExpectedStepTimes) == 0 && c.config.WarnUnmatchedGPU {
		logrus.Warnf("%s: no expected step time for GPU %q", tc.Name, c.gpu)
	}

	run, err := c.runner.Run(ctx, sc)
	if run != nil {
		res.ExitCodes = []int{run.ExitCode}
		res.Lines = trace.Summarize(run.Trace)
		res.ObservedStepTimes = run.StepTimes()
		for _, st := range res.ObservedStepTimes {
			logrus.Infof("%s: step time: %s", tc.Name, st)
		}
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	n := c.comparedLength(tc)
	res.Compared = n
	res.Expected = Prefix(rec.ExpectedLosses(), n)
	res.Actual = Prefix(run.Losses(), n)
	res.Passed, res.MismatchIndex = EqualLosses(res.Actual, res.Expected)
	return res
}

// CrossCheck runs both scenarios of tc and requires identical full loss
// sequences. No baseline is involved. Two empty sequences fail.
func (c *Comparator) CrossCheck(ctx context.Context, tc *Case) CaseResult {
	res := CaseResult{
		Name:          tc.Name,
		Kind:          CaseKindCross,
		Scenarios:     append([]Scenario(nil), tc.Cross...),
		MismatchIndex: -1,
	}
	if len(tc.Cross) != 2 {
		res.Error = fmt.Sprintf("cross needs exactly 2 scenarios, got %d", len(tc.Cross))
		return res
	}

	var losses [2][]float64
	for i, sc := range tc.Cross {
		run, err := c.runner.Run(ctx, sc)
		if run != nil {
			res.ExitCodes = append(res.ExitCodes, run.ExitCode)
			res.Lines = res.Lines.Add(trace.Summarize(run.Trace))
			losses[i] = run.Losses()
		}
		if err != nil {
			res.Error = err.Error()
			return res
		}
	}

	res.Expected, res.Actual = losses[1], losses[0]
	if len(res.Actual) == 0 && len(res.Expected) == 0 {
		res.Error = "neither variant produced loss records"
		return res
	}
	res.Passed, res.MismatchIndex = EqualLosses(res.Actual, res.Expected)
	return res
}

// Run dispatches tc to CompareBaseline or CrossCheck.
func (c *Comparator) Run(ctx context.Context, tc *Case) CaseResult {
	var res CaseResult
	if tc.IsCross() {
		res = c.CrossCheck(ctx, tc)
	} else {
		res = c.CompareBaseline(ctx, tc)
	}
	switch {
	case res.Error != "":
		logrus.Errorf("%s: FAIL: %s", res.Name, res.Error)
	case !res.Passed:
		logrus.Errorf("%s: FAIL: losses differ at index %d: got %v, want %v", res.Name, res.MismatchIndex, res.Actual, res.Expected)
	default:
		logrus.Infof("%s: ok", res.Name)
	}
	return res
}

// RunSuite runs every case of s in order, one child process at a time.
// A cancelled ctx stops the suite after the current case.
func (c *Comparator) RunSuite(ctx context.Context, s *Suite) []CaseResult {
	results := make([]CaseResult, 0, len(s.Cases))
	for i := range s.Cases {
		if ctx.Err() != nil {
			break
		}
		results = append(results, c.Run(ctx, &s.Cases[i]))
	}
	return results
}
