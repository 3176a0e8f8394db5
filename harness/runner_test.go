package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/moe-regress/harness/trace"
	"github.com/inference-sim/moe-regress/internal/testutil"
)

func TestRunner_Run_ScrapesLossesAndStepTime(t *testing.T) {
	// GIVEN a source replaying three steps and a summary
	src := &StaticSource{Fallback: testutil.ExampleOutput([]float64{0.69315, 0.42138, 0.28671}, "0.0251")}
	r := NewRunner(src, RunnerConfig{Launcher: DefaultLauncher()})
	s := Scenario{Top: 1, Precision: PrecisionFloat32, Experts: 1}.WithDefaults()

	// WHEN the scenario runs
	res, err := r.Run(context.Background(), s)

	// THEN losses are rounded to 3 digits, in emission order
	require.NoError(t, err)
	assert.Equal(t, []float64{0.693, 0.421, 0.287}, res.Losses())
	assert.Equal(t, []string{"0.0251"}, res.StepTimes())
	assert.Equal(t, 0, res.ExitCode)

	// AND the launched command is the scenario's
	require.Len(t, src.Calls, 1)
	assert.Equal(t, res.Command, src.Calls[0])
	assert.Contains(t, res.Command.String(), "--top 1 --dtype float32 --num_local_experts 1")
}

func TestRunner_Run_ReducedPrecisionRounding(t *testing.T) {
	src := &StaticSource{Fallback: testutil.ExampleOutput([]float64{0.6934, 0.4712}, "")}
	r := NewRunner(src, RunnerConfig{})
	s := Scenario{Top: 1, Precision: PrecisionFloat16, Experts: 1}.WithDefaults()

	res, err := r.Run(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.5}, res.Losses())
	assert.Empty(t, res.StepTimes())
}

func TestRunner_Run_CountsSkippedLinesInTrace(t *testing.T) {
	lines := []string{
		"Traceback (most recent call last):",
		"STEP-0: DONE, loss = 0.69315, step_time = 0.0251 sec.",
		"some warning text from a library",
		"[Summary] Average synchronized step_time = 0.0251 sec.",
	}
	r := NewRunner(&StaticSource{Fallback: lines}, RunnerConfig{})

	res, err := r.Run(context.Background(), DefaultScenario())

	require.NoError(t, err)
	summary := trace.Summarize(res.Trace)
	assert.Equal(t, trace.TraceSummary{TotalLines: 4, LossLines: 1, SummaryLines: 1, UnrecognizedLines: 2}, summary)
	skipped := res.Trace.Unrecognized()
	require.Len(t, skipped, 2)
	assert.Equal(t, "Traceback (most recent call last):", skipped[0].Text)
	assert.Equal(t, 2, skipped[1].Index)
}

func TestRunner_Run_NoLossRecords_LenientReturnsEmpty(t *testing.T) {
	r := NewRunner(&StaticSource{Fallback: []string{"nothing useful"}}, RunnerConfig{})

	res, err := r.Run(context.Background(), DefaultScenario())

	require.NoError(t, err)
	assert.Empty(t, res.Losses())
}

func TestRunner_Run_NoLossRecords_StrictFails(t *testing.T) {
	r := NewRunner(&StaticSource{Fallback: []string{"nothing useful"}}, RunnerConfig{Strict: true})

	res, err := r.Run(context.Background(), DefaultScenario())

	assert.ErrorIs(t, err, ErrNoLossRecords)
	require.NotNil(t, res, "partial result is returned alongside the error")
	assert.Equal(t, 1, trace.Summarize(res.Trace).TotalLines)
}

func TestRunner_Run_ChildExitStatusIsNotAnError(t *testing.T) {
	// GIVEN a child that printed one step and then crashed
	s := DefaultScenario()
	cmd, err := DefaultLauncher().Command(s)
	require.NoError(t, err)
	src := &StaticSource{
		Outputs: map[string][]string{cmd.String(): testutil.ExampleOutput([]float64{0.69327}, "")},
		Errs:    map[string]error{cmd.String(): &ExitError{Code: 1}},
	}

	// WHEN run
	res, err := NewRunner(src, RunnerConfig{}).Run(context.Background(), s)

	// THEN the partial losses come back with the exit code recorded
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, []float64{0.693}, res.Losses())
}

func TestRunner_Run_LaunchFailureIsAnError(t *testing.T) {
	launchErr := errors.New("exec: \"python3\": executable file not found in $PATH")
	s := DefaultScenario()
	cmd, _ := DefaultLauncher().Command(s)
	src := &StaticSource{Errs: map[string]error{cmd.String(): launchErr}}

	_, err := NewRunner(src, RunnerConfig{}).Run(context.Background(), s)

	assert.ErrorIs(t, err, launchErr)
}

func TestRunner_Run_InvalidScenarioNeverLaunches(t *testing.T) {
	src := &StaticSource{}
	s := DefaultScenario()
	s.Experts = 0

	_, err := NewRunner(src, RunnerConfig{}).Run(context.Background(), s)

	assert.Error(t, err)
	assert.Empty(t, src.Calls)
}

// blockingSource never produces output and returns once ctx is done.
type blockingSource struct{}

func (blockingSource) Stream(ctx context.Context, _ Command, _ func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner_Run_TimeoutAppliesToSource(t *testing.T) {
	r := NewRunner(blockingSource{}, RunnerConfig{Timeout: 20 * time.Millisecond})

	_, err := r.Run(context.Background(), DefaultScenario())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
