package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/environment"
	"github.com/samuelfneumann/gotrpo/environment/envconfig"
	"github.com/samuelfneumann/gotrpo/evaluate"
	"github.com/samuelfneumann/gotrpo/experiment"
	"github.com/spf13/cobra"
)

func evaluateCommand() *cobra.Command {
	var (
		excelName, envName, modelRoot, db string
		seeds, maxSteps                   int
	)

	cmd := &cobra.Command{
		Use:   "evaluate MODELS...",
		Short: "Evaluate every checkpoint of the given runs over seeds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, models []string) error {
			checkpoints, err := evaluate.Checkpoints(modelRoot, models)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			glog.Infof("evaluate: %d checkpoints, %d seeds",
				len(checkpoints), seeds)

			newEnv := func(seed uint64) (environment.Environment, error) {
				return envconfig.Make(envName, experiment.DefaultConfig().Gamma,
					seed)
			}
			config := evaluate.Config{
				ModelRoot:   modelRoot,
				Checkpoints: checkpoints,
				Seeds:       seeds,
				MaxSteps:    maxSteps,
				Progress:    os.Stderr,
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt)
			defer stop()
			results, err := evaluate.Run(ctx, config, newEnv)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}

			path := filepath.Join("results", excelName+".xlsx")
			if err := evaluate.WriteExcel(path, results); err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			glog.Infof("evaluate: wrote %d results to %v", len(results), path)

			if db == "" {
				return nil
			}
			store, err := evaluate.OpenStore(db)
			if err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			defer store.Close()
			if err := store.Insert(results...); err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&excelName, "excel_name", "",
		"name of the output workbook, written to results/<name>.xlsx")
	flags.StringVar(&envName, "environment", "",
		"environment name (Walker-v0, or a Gym name like Hopper-v4)")
	flags.StringVar(&modelRoot, "model_root",
		experiment.DefaultConfig().ModelRoot, "directory holding the runs")
	flags.IntVar(&seeds, "seeds", evaluate.DefaultSeeds,
		"number of seeds to evaluate each checkpoint for")
	flags.IntVar(&maxSteps, "max_steps", evaluate.DefaultMaxSteps,
		"maximum number of steps of an evaluation episode")
	flags.StringVar(&db, "db", "", "sqlite database to add the results to")
	cmd.MarkFlagRequired("excel_name")
	cmd.MarkFlagRequired("environment")

	return cmd
}
