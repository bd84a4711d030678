package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/samuelfneumann/gotrpo/environment/envconfig"
	"github.com/samuelfneumann/gotrpo/experiment"
	"github.com/samuelfneumann/gotrpo/experiment/checkpointer"
	"github.com/samuelfneumann/gotrpo/experiment/tracker"
	"github.com/samuelfneumann/gotrpo/policy"
	"github.com/samuelfneumann/gotrpo/valuefn"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// trainFlags holds the values of the train command line flags
type trainFlags struct {
	config string
	experiment.Config
}

func (f *trainFlags) register(flags *pflag.FlagSet) {
	d := experiment.DefaultConfig()

	flags.StringVar(&f.config, "config", "", "JSON configuration file, "+
		"overridden by any other flags given")
	flags.StringVarP(&f.Environment, "environment", "e", d.Environment,
		"environment name (Walker-v0, or a Gym name like Hopper-v4)")
	flags.IntVarP(&f.NumEpisodes, "num_episodes", "n", d.NumEpisodes,
		"number of episodes to run")
	flags.Float64VarP(&f.Gamma, "gamma", "g", d.Gamma, "discount factor")
	flags.Float64VarP(&f.Lambda, "lam", "l", d.Lambda,
		"lambda for generalized advantage estimation")
	flags.Float64VarP(&f.KLTarget, "kl_targ", "k", d.KLTarget,
		"D_KL target value")
	flags.IntVarP(&f.BatchSize, "batch_size", "b", d.BatchSize,
		"number of episodes per training batch")
	flags.IntVarP(&f.MaxIteration, "max_iteration", "m", d.MaxIteration,
		"maximum number of steps per episode")
	flags.IntVar(&f.ModelSaveFrequency, "model_save_frequency",
		d.ModelSaveFrequency, "episodes between checkpoints, 0 to only "+
			"checkpoint at the end of training")
	flags.IntVar(&f.UpdateIntervalEpisodes, "update_interval_episodes",
		d.UpdateIntervalEpisodes, "episodes after which batches use 10 "+
			"episodes of up to 2000 steps, 0 to never switch")
	flags.Uint64Var(&f.Seed, "seed", d.Seed, "random seed")
	flags.StringVar(&f.ModelRoot, "model_root", d.ModelRoot,
		"directory under which runs are saved")
	flags.StringVar(&f.LogRoot, "log_root", d.LogRoot,
		"directory under which CSV logs are written")
}

// resolve returns the configuration of the run: the config file, if
// any, with the flags set on the command line applied on top
func (f *trainFlags) resolve(flags *pflag.FlagSet) (experiment.Config,
	error) {
	if f.config == "" {
		return f.Config, f.Config.Validate()
	}

	config, err := experiment.LoadConfig(f.config)
	if err != nil {
		return experiment.Config{}, err
	}

	overrides := map[string]func(){
		"environment":              func() { config.Environment = f.Environment },
		"num_episodes":             func() { config.NumEpisodes = f.NumEpisodes },
		"gamma":                    func() { config.Gamma = f.Gamma },
		"lam":                      func() { config.Lambda = f.Lambda },
		"kl_targ":                  func() { config.KLTarget = f.KLTarget },
		"batch_size":               func() { config.BatchSize = f.BatchSize },
		"max_iteration":            func() { config.MaxIteration = f.MaxIteration },
		"model_save_frequency":     func() { config.ModelSaveFrequency = f.ModelSaveFrequency },
		"update_interval_episodes": func() { config.UpdateIntervalEpisodes = f.UpdateIntervalEpisodes },
		"seed":                     func() { config.Seed = f.Seed },
		"model_root":               func() { config.ModelRoot = f.ModelRoot },
		"log_root":                 func() { config.LogRoot = f.LogRoot },
	}
	for name, override := range overrides {
		if flags.Changed(name) {
			override()
		}
	}
	return config, config.Validate()
}

func trainCommand() *cobra.Command {
	f := &trainFlags{Config: experiment.DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a policy with TRPO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := f.resolve(cmd.Flags())
			if err != nil {
				return fmt.Errorf("train: %v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt)
			defer stop()
			return train(ctx, config)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func train(ctx context.Context, config experiment.Config) error {
	env, err := envconfig.Make(config.Environment, config.Gamma, config.Seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	defer env.Close()

	runID, runDir, err := checkpointer.NextRunDir(config.ModelRoot)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	glog.Infof("train: saving run %v to %v", runID, runDir)

	logger, err := tracker.NewLogger(config.LogRoot, config.Environment,
		runID, time.Now())
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			glog.Warningf("train: %v", err)
		}
	}()
	glog.Infof("train: logging to %v", logger.Path())

	obsDim := env.ObservationSpec().Dims() + 1
	actDim := env.ActionSpec().Dims()
	p, err := policy.NewGaussian(obsDim, actDim, config.PolicyConfig(),
		config.Seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	v, err := valuefn.NewMLP(obsDim, config.ValueFn, config.Seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}

	paths := checkpointer.Paths{ModelRoot: config.ModelRoot, RunID: runID}
	trainer, err := experiment.NewTrainer(config, env, p, v, logger, paths)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}
	return trainer.Run(ctx)
}
