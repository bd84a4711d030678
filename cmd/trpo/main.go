// Command trpo trains linear Gaussian policies on locomotion tasks,
// evaluates the saved checkpoints, and summarises the results.
package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trpo",
		Short: "Train and evaluate TRPO policies on locomotion tasks",

		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(trainCommand())
	root.AddCommand(evaluateCommand())
	root.AddCommand(averageCommand())
	root.AddCommand(plotCommand())
	return root
}

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	flag.Set("logtostderr", "true")
	defer glog.Flush()

	if err := rootCommand().Execute(); err != nil {
		glog.Exitf("trpo: %v", err)
	}
}
