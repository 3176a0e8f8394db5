package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/moe-regress/harness"
)

var recordOutput string

// recordBaseline runs every baseline case of suite and returns one keyed
// record per scenario. Cross-variant cases carry no baseline and are skipped.
func recordBaseline(ctx context.Context, runner *harness.Runner, suite *harness.Suite, gpu string) ([]harness.BaselineRecord, error) {
	var records []harness.BaselineRecord
	for i := range suite.Cases {
		c := &suite.Cases[i]
		if c.IsCross() {
			logrus.Debugf("%s: cross-variant case, not recorded", c.Name)
			continue
		}
		sc := *c.Scenario
		res, err := runner.Run(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("%s: child exited with status %d", c.Name, res.ExitCode)
		}
		rec := harness.BaselineRecord{
			Precision: sc.Precision,
			Top:       sc.Top,
			Experts:   sc.Experts,
			StepTimes: []harness.StepTimeEntry{},
		}
		for _, o := range res.Observations {
			if o.Kind == harness.KindLoss {
				rec.Losses = append(rec.Losses, harness.Number(o.Loss))
			}
		}
		if len(rec.Losses) == 0 {
			return nil, fmt.Errorf("%s: %w", c.Name, harness.ErrNoLossRecords)
		}
		if st := res.StepTimes(); gpu != "" && len(st) > 0 {
			v, err := strconv.ParseFloat(st[len(st)-1], 64)
			if err != nil {
				logrus.Warnf("%s: step time %q not recorded: %v", c.Name, st[len(st)-1], err)
			} else {
				rec.StepTimes = append(rec.StepTimes, harness.StepTimeEntry{GPU: gpu, Value: harness.Number(v)})
			}
		}
		logrus.Infof("%s: recorded %d losses", c.Name, len(rec.Losses))
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("suite has no baseline cases")
	}
	return records, nil
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the baseline cases and write their results as a new baseline",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		c, err := applyRunFlags(cmd, cfg)
		if err != nil {
			logrus.Fatalf("Invalid flags: %v", err)
		}
		suite, err := loadSuite(c.Suite, caseFilter)
		if err != nil {
			logrus.Fatalf("Failed to load suite: %v", err)
		}
		source := newLineSource(nil)
		gpu := probeGPU(ctx, gpuOverride, source)
		records, err := recordBaseline(ctx, harness.NewRunner(source, c.runnerConfig()), suite, gpu)
		if err != nil {
			logrus.Fatalf("Recording failed: %v", err)
		}
		if err := harness.WriteBaseline(recordOutput, records); err != nil {
			logrus.Fatalf("Failed to write baseline: %v", err)
		}
		logrus.Infof("wrote %d records to %s", len(records), recordOutput)
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "baseline.json", "Where to write the recorded baseline")
	recordCmd.Flags().StringVar(&suitePath, "suite", "", "Suite file, .yaml or .toml (default: built-in suite)")
	recordCmd.Flags().StringVar(&caseFilter, "case", "", "Only record cases whose name contains this string")
	recordCmd.Flags().StringVar(&gpuOverride, "gpu", "", "GPU model name; skips nvidia-smi")
	recordCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-scenario time limit (0 = none)")

	rootCmd.AddCommand(recordCmd)
}
