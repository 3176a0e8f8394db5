package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/moe-regress/harness"
)

var (
	logLevel     string // Log verbosity level
	defaultsFile string // Path to defaults.yaml

	// Launcher overrides
	pythonBin    string
	launchModule string
	examplesDir  string
	workDir      string

	cfg HarnessConfig // defaults.yaml merged with changed flags
)

// newLineSource builds the source children are launched through.
// Tests swap it for a harness.StaticSource.
var newLineSource = func(stderr io.Writer) harness.LineSource {
	return harness.ExecSource{Stderr: stderr}
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "moe-regress",
	Short: "Regression harness for the mixture-of-experts helloworld examples",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err = loadHarnessConfig(defaultsFile, cmd.Flags().Changed("defaults-filepath"))
		if err != nil {
			return err
		}
		// Flags override defaults.yaml only when the user set them.
		if cmd.Flags().Changed("python") {
			cfg.Launcher.Python = pythonBin
		}
		if cmd.Flags().Changed("launch-module") {
			cfg.Launcher.LaunchModule = launchModule
		}
		if cmd.Flags().Changed("examples-dir") {
			cfg.Launcher.ExamplesDir = examplesDir
		}
		if cmd.Flags().Changed("work-dir") {
			cfg.Launcher.WorkDir = workDir
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&defaultsFile, "defaults-filepath", defaultsFilePath, "Path to defaults.yaml")

	rootCmd.PersistentFlags().StringVar(&pythonBin, "python", "", "Python interpreter (overrides launcher.python)")
	rootCmd.PersistentFlags().StringVar(&launchModule, "launch-module", "", "Distributed launch module (overrides launcher.launch_module)")
	rootCmd.PersistentFlags().StringVar(&examplesDir, "examples-dir", "", "Directory holding the helloworld scripts (overrides launcher.examples_dir)")
	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "Working directory for children (overrides launcher.work_dir)")
}
