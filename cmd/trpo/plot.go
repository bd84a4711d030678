package main

import (
	"fmt"

	"github.com/samuelfneumann/gotrpo/plot"
	"github.com/spf13/cobra"
)

func plotCommand() *cobra.Command {
	var (
		output        string
		width, height int
	)

	cmd := &cobra.Command{
		Use:   "plot LOG.csv",
		Short: "Plot the learning curve of a training log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := plot.LearningCurve(args[0], output, width,
				height); err != nil {
				return fmt.Errorf("plot: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "learning_curve.png",
		"output image")
	cmd.Flags().IntVar(&width, "width", 800, "image width in pixels")
	cmd.Flags().IntVar(&height, "height", 600, "image height in pixels")

	return cmd
}
