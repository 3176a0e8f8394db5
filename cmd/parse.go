package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/moe-regress/harness"
	"github.com/inference-sim/moe-regress/harness/trace"
)

var parseDType string

// ParsedLog is what `parse` prints for a saved training log.
type ParsedLog struct {
	Precision harness.Precision  `yaml:"dtype"`
	Losses    []float64          `yaml:"losses"`
	StepTimes []string           `yaml:"step_times,omitempty"`
	Lines     trace.TraceSummary `yaml:"lines"`
	Skipped   []trace.LineRecord `yaml:"skipped,omitempty"`
}

// parseLog classifies a saved log the way a live run would be classified.
func parseLog(ctx context.Context, r io.Reader, p harness.Precision) (ParsedLog, error) {
	if !harness.IsValidPrecision(string(p)) {
		return ParsedLog{}, fmt.Errorf("unknown dtype %q", p)
	}
	sc := harness.DefaultScenario()
	sc.Precision = p
	runner := harness.NewRunner(harness.ReaderSource{R: r}, harness.RunnerConfig{
		Launcher: harness.DefaultLauncher(),
		Trace:    trace.TraceConfig{KeepText: false},
	})
	res, err := runner.Run(ctx, sc)
	if err != nil {
		return ParsedLog{}, err
	}
	return ParsedLog{
		Precision: p,
		Losses:    res.Losses(),
		StepTimes: res.StepTimes(),
		Lines:     trace.Summarize(res.Trace),
		Skipped:   res.Trace.Unrecognized(),
	}, nil
}

var parseCmd = &cobra.Command{
	Use:   "parse [log-file]",
	Short: "Extract losses and step times from a saved training log (stdin when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				logrus.Fatalf("Failed to open log: %v", err)
			}
			defer f.Close()
			in = f
		}
		parsed, err := parseLog(cmd.Context(), in, harness.Precision(parseDType))
		if err != nil {
			logrus.Fatalf("Failed to parse log: %v", err)
		}
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(parsed); err != nil {
			logrus.Fatalf("Failed to write YAML: %v", err)
		}
		if err := encoder.Close(); err != nil {
			logrus.Fatalf("Failed to flush YAML: %v", err)
		}
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseDType, "dtype", string(harness.PrecisionFloat32), "Precision the losses are rounded for (float32, float16)")

	rootCmd.AddCommand(parseCmd)
}
