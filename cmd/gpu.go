package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/moe-regress/harness"
)

var gpuCmd = &cobra.Command{
	Use:   "gpu",
	Short: "Print the GPU model step times are matched against",
	Run: func(cmd *cobra.Command, args []string) {
		name, err := harness.SMIProber{Source: newLineSource(nil)}.Name(cmd.Context())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Println(name)
	},
}

func init() {
	rootCmd.AddCommand(gpuCmd)
}
