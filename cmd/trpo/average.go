package main

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/metrics"
	"github.com/spf13/cobra"
)

func averageCommand() *cobra.Command {
	var (
		output  string
		dynamic bool
	)

	cmd := &cobra.Command{
		Use:   "average INPUT.xlsx",
		Short: "Average evaluation results over seeds for each checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := metrics.ReadResults(args[0])
			if err != nil {
				return fmt.Errorf("average: %v", err)
			}

			avgs, err := metrics.Average(results)
			if err != nil {
				return fmt.Errorf("average: %v", err)
			}
			for _, a := range metrics.Final(avgs) {
				glog.Infof("average: run %v, checkpoint %d: %.1f steps, "+
					"%.3f reward per step", a.Model, a.Checkpoint, a.Steps,
					a.RewardPerStep)
			}
			if dynamic {
				avgs = metrics.Reindex(avgs)
			}

			if err := metrics.WriteAverages(output, results, avgs); err != nil {
				return fmt.Errorf("average: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "averages.xlsx",
		"output workbook")
	cmd.Flags().BoolVar(&dynamic, "dynamic", false, "number the "+
		"checkpoints of each run 0, 1, ... instead of by episode")

	return cmd
}
