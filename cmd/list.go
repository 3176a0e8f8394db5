package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/moe-regress/harness"
)

var listCommands bool

// writeCaseList prints one line per case, followed by the launch command
// of each scenario when withCommands is set.
func writeCaseList(w io.Writer, suite *harness.Suite, launcher harness.Launcher, withCommands bool) error {
	for i := range suite.Cases {
		c := &suite.Cases[i]
		scenarios := c.Cross
		kind := harness.CaseKindCross
		if !c.IsCross() {
			scenarios = []harness.Scenario{*c.Scenario}
			kind = harness.CaseKindBaseline
		}
		desc := scenarios[0].String()
		if len(scenarios) == 2 {
			desc += " vs " + scenarios[1].String()
		}
		if _, err := fmt.Fprintf(w, "%-30s %-8s %s\n", c.Name, kind, desc); err != nil {
			return err
		}
		if !withCommands {
			continue
		}
		for _, sc := range scenarios {
			cmd, err := launcher.Command(sc)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			if _, err := fmt.Fprintf(w, "    %s\n", cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List suite cases",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := applyRunFlags(cmd, cfg)
		if err != nil {
			logrus.Fatalf("Invalid flags: %v", err)
		}
		suite, err := loadSuite(c.Suite, caseFilter)
		if err != nil {
			logrus.Fatalf("Failed to load suite: %v", err)
		}
		if err := writeCaseList(os.Stdout, suite, c.Launcher, listCommands); err != nil {
			logrus.Fatalf("Failed to list cases: %v", err)
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&suitePath, "suite", "", "Suite file, .yaml or .toml (default: built-in suite)")
	listCmd.Flags().StringVar(&caseFilter, "case", "", "Only list cases whose name contains this string")
	listCmd.Flags().BoolVar(&listCommands, "commands", false, "Print the launch command of every scenario")

	rootCmd.AddCommand(listCmd)
}
