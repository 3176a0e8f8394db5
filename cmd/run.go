package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/moe-regress/harness"
	"github.com/inference-sim/moe-regress/harness/report"
	"github.com/inference-sim/moe-regress/harness/trace"
)

var (
	baselinePath   string
	suitePath      string
	caseFilter     string
	gpuOverride    string
	strict         bool
	timeout        time.Duration
	reducedPrefix  int
	reportJSONPath string
	reportMDPath   string
	showStderr     bool
	keepLineText   bool
)

// runOptions carries everything runSuite needs besides the line source.
type runOptions struct {
	cfg        HarnessConfig
	caseFilter string
	gpu        string // skip probing when set
	reportJSON string
	reportMD   string
	trace      trace.TraceConfig
}

// applyRunFlags copies changed run/record flags over the loaded config.
// Flag values get the same range checks as defaults.yaml.
func applyRunFlags(cmd *cobra.Command, c HarnessConfig) (HarnessConfig, error) {
	if cmd.Flags().Changed("baseline") {
		c.Baseline = baselinePath
	}
	if cmd.Flags().Changed("suite") {
		c.Suite = suitePath
	}
	if cmd.Flags().Changed("strict") {
		c.Strict = strict
	}
	if cmd.Flags().Changed("timeout") {
		if timeout < 0 {
			return c, fmt.Errorf("--timeout must be >= 0, got %s", timeout)
		}
		c.Timeout = timeout
	}
	if cmd.Flags().Changed("reduced-prefix") {
		if reducedPrefix < 1 {
			return c, fmt.Errorf("--reduced-prefix must be >= 1, got %d", reducedPrefix)
		}
		c.ReducedPrefix = reducedPrefix
	}
	return c, nil
}

// loadSuite returns the configured suite file or the built-in suite, filtered.
func loadSuite(path, filter string) (*harness.Suite, error) {
	suite := harness.DefaultSuite()
	if path != "" {
		var err error
		if suite, err = harness.LoadSuite(path); err != nil {
			return nil, err
		}
	}
	suite = suite.Filter(filter)
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("no cases match %q", filter)
	}
	return suite, nil
}

func needsBaseline(s *harness.Suite) bool {
	for i := range s.Cases {
		if !s.Cases[i].IsCross() {
			return true
		}
	}
	return false
}

// probeGPU returns the override or asks nvidia-smi. A failed probe only
// costs the advisory step-time output, so it is logged and yields "".
func probeGPU(ctx context.Context, override string, source harness.LineSource) string {
	var prober harness.GPUProber = harness.SMIProber{Source: source}
	if override != "" {
		prober = harness.StaticProber(override)
	}
	name, err := prober.Name(ctx)
	if err != nil {
		logrus.Warnf("GPU model unknown, step times will not be matched: %v", err)
		return ""
	}
	logrus.Infof("GPU: %s", name)
	return name
}

// runSuite executes the selected cases one after another and writes the
// requested reports.
func runSuite(ctx context.Context, opts runOptions, source harness.LineSource) (report.Report, error) {
	started := time.Now()
	suite, err := loadSuite(opts.cfg.Suite, opts.caseFilter)
	if err != nil {
		return report.Report{}, err
	}

	var baseline *harness.Baseline
	if needsBaseline(suite) {
		if baseline, err = harness.LoadBaseline(opts.cfg.Baseline); err != nil {
			return report.Report{}, err
		}
		logrus.Debugf("loaded %d baseline records from %s", len(baseline.Records), opts.cfg.Baseline)
	}

	gpu := probeGPU(ctx, opts.gpu, source)
	runnerCfg := opts.cfg.runnerConfig()
	runnerCfg.Trace = opts.trace
	cmp := harness.NewComparator(harness.NewRunner(source, runnerCfg), baseline, gpu, opts.cfg.compareConfig())

	rep := report.New(gpu, started, cmp.RunSuite(ctx, suite))
	if opts.reportJSON != "" {
		if err := report.WriteJSON(opts.reportJSON, rep); err != nil {
			return rep, fmt.Errorf("write JSON report: %w", err)
		}
	}
	if opts.reportMD != "" {
		if err := report.WriteMarkdown(opts.reportMD, rep); err != nil {
			return rep, fmt.Errorf("write Markdown report: %w", err)
		}
	}
	return rep, nil
}

// runCmd executes the regression suite
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the regression suite against the baseline",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var stderr io.Writer
		if showStderr {
			stderr = os.Stderr
		}
		runCfg, err := applyRunFlags(cmd, cfg)
		if err != nil {
			logrus.Fatalf("Invalid flags: %v", err)
		}
		opts := runOptions{
			cfg:        runCfg,
			caseFilter: caseFilter,
			gpu:        gpuOverride,
			reportJSON: reportJSONPath,
			reportMD:   reportMDPath,
			trace:      trace.TraceConfig{KeepText: keepLineText},
		}
		rep, err := runSuite(ctx, opts, newLineSource(stderr))
		if err != nil {
			logrus.Fatalf("Suite failed to run: %v", err)
		}
		logrus.Infof("run %s: %d cases, %d failed (%s)", rep.RunID, len(rep.Cases), rep.Failed, rep.Duration)
		if code := rep.ExitCode(); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&baselinePath, "baseline", "", "Baseline dataset (overrides defaults.yaml)")
	runCmd.Flags().StringVar(&suitePath, "suite", "", "Suite file, .yaml or .toml (default: built-in suite)")
	runCmd.Flags().StringVar(&caseFilter, "case", "", "Only run cases whose name contains this string")
	runCmd.Flags().StringVar(&gpuOverride, "gpu", "", "GPU model name; skips nvidia-smi")
	runCmd.Flags().BoolVar(&strict, "strict", false, "Fail runs that print no loss lines")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-scenario time limit (0 = none)")
	runCmd.Flags().IntVar(&reducedPrefix, "reduced-prefix", 2, "Leading losses compared for float16 scenarios")
	runCmd.Flags().StringVar(&reportJSONPath, "report-json", "", "Write a JSON report to this path")
	runCmd.Flags().StringVar(&reportMDPath, "report-md", "", "Write a Markdown report to this path")
	runCmd.Flags().BoolVar(&showStderr, "show-stderr", false, "Pass children's stderr through")
	runCmd.Flags().BoolVar(&keepLineText, "keep-lines", false, "Keep the text of recognized lines in traces")

	rootCmd.AddCommand(runCmd)
}
