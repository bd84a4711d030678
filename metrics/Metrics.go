// Package metrics aggregates evaluation results over seeds, per run and
// checkpoint.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samuelfneumann/gotrpo/evaluate"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises a sample
type Stats struct {
	N      int
	Mean   float64
	Median float64

	// Std is the sample standard deviation, 0 for a single value
	Std float64
}

// Describe returns summary statistics of values. The returned bool is
// false if there are no values to describe.
func Describe(values []float64) (Stats, bool) {
	if len(values) == 0 {
		return Stats{}, false
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	std := 0.0
	if len(sorted) > 1 {
		std = stat.StdDev(sorted, nil)
	}

	return Stats{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: median,
		Std:    std,
	}, true
}

// SplitModel splits a checkpoint name <run>/<checkpoint> into its run
// and checkpoint
func SplitModel(name string) (model, checkpoint string, err error) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("splitModel: name %q is not of the form "+
			"<run>/<checkpoint>", name)
	}
	return parts[0], parts[1], nil
}

// CheckpointAverage holds the means over seeds of the evaluation
// results of one checkpoint
type CheckpointAverage struct {
	Model         string
	Checkpoint    int
	Steps         float64
	RewardPerStep float64
	Rewards       float64
}

type group struct {
	model      string
	checkpoint int
	steps      []float64
	perStep    []float64
	rewards    []float64
}

// Average returns the per checkpoint means of results, ordered by run
// and then numerically by checkpoint
func Average(results []evaluate.Result) ([]CheckpointAverage, error) {
	groups := make(map[string]*group)
	for _, r := range results {
		model, ckpt, err := SplitModel(r.Model)
		if err != nil {
			return nil, fmt.Errorf("average: %v", err)
		}
		checkpoint, err := strconv.Atoi(ckpt)
		if err != nil {
			return nil, fmt.Errorf("average: checkpoint %q of %v is not "+
				"a number", ckpt, model)
		}

		g, ok := groups[r.Model]
		if !ok {
			g = &group{model: model, checkpoint: checkpoint}
			groups[r.Model] = g
		}
		g.steps = append(g.steps, float64(r.Steps))
		g.perStep = append(g.perStep, r.RewardPerStep)
		g.rewards = append(g.rewards, r.Rewards)
	}

	avgs := make([]CheckpointAverage, 0, len(groups))
	for _, g := range groups {
		steps, _ := Describe(g.steps)
		perStep, _ := Describe(g.perStep)
		rewards, _ := Describe(g.rewards)
		avgs = append(avgs, CheckpointAverage{
			Model:         g.model,
			Checkpoint:    g.checkpoint,
			Steps:         steps.Mean,
			RewardPerStep: perStep.Mean,
			Rewards:       rewards.Mean,
		})
	}

	sort.Slice(avgs, func(i, j int) bool {
		if avgs[i].Model != avgs[j].Model {
			return avgs[i].Model < avgs[j].Model
		}
		return avgs[i].Checkpoint < avgs[j].Checkpoint
	})
	return avgs, nil
}

// Reindex replaces the checkpoints of each run by their rank 0, 1, ...
// within the run. Runs whose checkpoints are taken at varying episode
// counts can then be compared checkpoint by checkpoint.
func Reindex(avgs []CheckpointAverage) []CheckpointAverage {
	ranks := make(map[string][]int)
	for _, a := range avgs {
		ranks[a.Model] = append(ranks[a.Model], a.Checkpoint)
	}
	for model, checkpoints := range ranks {
		sort.Ints(checkpoints)
		ranks[model] = unique(checkpoints)
	}

	out := make([]CheckpointAverage, len(avgs))
	for i, a := range avgs {
		a.Checkpoint = sort.SearchInts(ranks[a.Model], a.Checkpoint)
		out[i] = a
	}
	return out
}

// unique removes duplicates from a sorted slice
func unique(sorted []int) []int {
	var out []int
	for _, v := range sorted {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Final returns the averages of the last checkpoint of each run
func Final(avgs []CheckpointAverage) []CheckpointAverage {
	last := make(map[string]CheckpointAverage)
	var models []string
	for _, a := range avgs {
		prev, ok := last[a.Model]
		if !ok {
			models = append(models, a.Model)
		}
		if !ok || a.Checkpoint > prev.Checkpoint {
			last[a.Model] = a
		}
	}

	sort.Strings(models)
	out := make([]CheckpointAverage, len(models))
	for i, model := range models {
		out[i] = last[model]
	}
	return out
}
