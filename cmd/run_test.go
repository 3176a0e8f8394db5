package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/moe-regress/harness"
	"github.com/inference-sim/moe-regress/harness/report"
	"github.com/inference-sim/moe-regress/internal/testutil"
)

// sourceFor returns a StaticSource printing lines for the named built-in case.
func sourceFor(t *testing.T, caseName string, lines []string) *harness.StaticSource {
	t.Helper()
	src := &harness.StaticSource{Outputs: make(map[string][]string)}
	suite := harness.DefaultSuite().Filter(caseName)
	require.Len(t, suite.Cases, 1)
	cmd, err := harness.DefaultLauncher().Command(*suite.Cases[0].Scenario)
	require.NoError(t, err)
	src.Outputs[cmd.String()] = lines
	return src
}

func testRunOptions(t *testing.T, caseName string) runOptions {
	t.Helper()
	cfg := defaultHarnessConfig()
	cfg.Baseline = testutil.BaselinePath(t)
	return runOptions{cfg: cfg, caseFilter: caseName, gpu: "NVIDIA A100-SXM4-40GB"}
}

func TestRunSuite_MatchingCase_PassesAndWritesReports(t *testing.T) {
	// GIVEN a case whose child prints the baseline losses
	src := sourceFor(t, "top1_fp32_1_expert", testutil.ExampleOutput([]float64{0.69315, 0.42138, 0.28671}, "0.0249"))
	opts := testRunOptions(t, "top1_fp32_1_expert")
	dir := t.TempDir()
	opts.reportJSON = filepath.Join(dir, "report.json")
	opts.reportMD = filepath.Join(dir, "report.md")

	// WHEN the suite runs
	rep, err := runSuite(context.Background(), opts, src)

	// THEN it passes and both reports exist
	require.NoError(t, err)
	assert.Equal(t, 0, rep.ExitCode())
	require.Len(t, rep.Cases, 1)
	assert.Equal(t, "NVIDIA A100-SXM4-40GB", rep.GPU)
	assert.Equal(t, []harness.StepTimeEntry{{GPU: "A100", Value: 0.0251}}, rep.Cases[0].ExpectedStepTimes)

	raw, err := os.ReadFile(opts.reportJSON)
	require.NoError(t, err)
	var decoded report.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)

	md, err := os.ReadFile(opts.reportMD)
	require.NoError(t, err)
	assert.Contains(t, string(md), "top1_fp32_1_expert")
}

func TestRunSuite_DivergentLosses_ExitCodeOne(t *testing.T) {
	src := sourceFor(t, "top1_fp32_1_expert", testutil.ExampleOutput([]float64{0.69315, 0.43138, 0.28671}, ""))

	rep, err := runSuite(context.Background(), testRunOptions(t, "top1_fp32_1_expert"), src)

	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExitCode())
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Cases[0].MismatchIndex)
}

func TestRunSuite_CrossOnly_DoesNotNeedBaseline(t *testing.T) {
	// GIVEN a baseline path that does not exist and only the cross-variant case selected
	opts := testRunOptions(t, "compare_megatron")
	opts.cfg.Baseline = filepath.Join(t.TempDir(), "missing.json")
	src := &harness.StaticSource{Fallback: testutil.ExampleOutput([]float64{0.7, 0.5}, "")}

	// WHEN the suite runs
	rep, err := runSuite(context.Background(), opts, src)

	// THEN both variants ran and agreed without loading a baseline
	require.NoError(t, err)
	assert.Len(t, src.Calls, 2)
	assert.True(t, rep.Passed)
}

func TestRunSuite_MissingBaseline_Errors(t *testing.T) {
	opts := testRunOptions(t, "top1")
	opts.cfg.Baseline = filepath.Join(t.TempDir(), "missing.json")

	_, err := runSuite(context.Background(), opts, &harness.StaticSource{})
	assert.Error(t, err)
}

func TestRunSuite_NoMatchingCase_Errors(t *testing.T) {
	_, err := runSuite(context.Background(), testRunOptions(t, "no_such_case"), &harness.StaticSource{})
	assert.Error(t, err)
}

func TestRunSuite_SuiteFile(t *testing.T) {
	// GIVEN a TOML suite with a single float16 case checked on three losses
	suitePath := testutil.WriteFile(t, "suite.toml", `
version = "1"

[[cases]]
name = "fp16_three"
prefix = 3

[cases.scenario]
top = 1
dtype = "float16"
num_local_experts = 1
`)
	opts := testRunOptions(t, "")
	opts.cfg.Suite = suitePath
	src := &harness.StaticSource{Fallback: testutil.ExampleOutput([]float64{0.6934, 0.4712, 0.3391}, "")}

	// WHEN the suite runs
	rep, err := runSuite(context.Background(), opts, src)

	// THEN the case's own prefix is used
	require.NoError(t, err)
	require.Len(t, rep.Cases, 1)
	assert.Equal(t, 3, rep.Cases[0].Compared)
	assert.True(t, rep.Cases[0].Passed, "error=%q", rep.Cases[0].Error)
}

func TestProbeGPU(t *testing.T) {
	// GIVEN nvidia-smi output served by a static source
	src := &harness.StaticSource{Outputs: map[string][]string{
		"nvidia-smi --query-gpu=name --format=csv,noheader": {"Tesla V100-SXM2-32GB", "Tesla V100-SXM2-32GB"},
	}}

	assert.Equal(t, "Tesla V100-SXM2-32GB", probeGPU(context.Background(), "", src))
	assert.Equal(t, "A100", probeGPU(context.Background(), "A100", src))
	// A failed probe is not fatal.
	assert.Equal(t, "", probeGPU(context.Background(), "", &harness.StaticSource{}))
}

// flagCommand binds the run flags that carry range checks to a fresh command.
func flagCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().DurationVar(&timeout, "timeout", 0, "")
	c.Flags().IntVar(&reducedPrefix, "reduced-prefix", 2, "")
	return c
}

func TestApplyRunFlags_ChangedFlagsOverride(t *testing.T) {
	c := flagCommand()
	require.NoError(t, c.Flags().Set("timeout", "30s"))
	require.NoError(t, c.Flags().Set("reduced-prefix", "3"))

	got, err := applyRunFlags(c, defaultHarnessConfig())

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.Equal(t, 3, got.ReducedPrefix)
}

func TestApplyRunFlags_UnchangedFlagsKeepConfig(t *testing.T) {
	base := defaultHarnessConfig()
	base.ReducedPrefix = 4

	got, err := applyRunFlags(flagCommand(), base)

	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestApplyRunFlags_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name, flag, value string
	}{
		{"zero reduced prefix", "reduced-prefix", "0"},
		{"negative reduced prefix", "reduced-prefix", "-1"},
		{"negative timeout", "timeout", "-5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := flagCommand()
			require.NoError(t, c.Flags().Set(tt.flag, tt.value))

			_, err := applyRunFlags(c, defaultHarnessConfig())

			assert.Error(t, err)
		})
	}
}
