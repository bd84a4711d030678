package metrics

import (
	"fmt"
	"strconv"

	"github.com/samuelfneumann/gotrpo/evaluate"
	"github.com/xuri/excelize/v2"
)

// AveragesSheet is the name of the worksheet holding the averages
const AveragesSheet = "Averages"

const (
	modelCol      = "Model"
	checkpointCol = "Checkpoint"
	stepsCol      = "Steps"
	perStepCol    = "Reward Divided by Steps"
	rewardsCol    = "Rewards"
	seedCol       = "Seed"
)

// ReadResults reads the evaluation results from the results sheet of
// the workbook at path. Columns are found by name. Workbooks in which
// the checkpoint has already been split into its own column are also
// accepted.
func ReadResults(path string) ([]evaluate.Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("readResults: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(evaluate.Sheet)
	if err != nil {
		return nil, fmt.Errorf("readResults: %v", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("readResults: sheet %v is empty",
			evaluate.Sheet)
	}

	index := make(map[string]int)
	for i, name := range rows[0] {
		index[name] = i
	}
	for _, name := range []string{modelCol, stepsCol, perStepCol,
		rewardsCol} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("readResults: missing column %q", name)
		}
	}

	results := make([]evaluate.Result, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cell := func(name string) string {
			j, ok := index[name]
			if !ok || j >= len(row) {
				return ""
			}
			return row[j]
		}

		r := evaluate.Result{Model: cell(modelCol)}
		if ckpt := cell(checkpointCol); ckpt != "" {
			r.Model += "/" + ckpt
		}

		steps, err := strconv.ParseFloat(cell(stepsCol), 64)
		if err != nil {
			return nil, fmt.Errorf("readResults: row %d: steps: %v", i+2, err)
		}
		r.Steps = int(steps)
		if r.RewardPerStep, err = strconv.ParseFloat(cell(perStepCol),
			64); err != nil {
			return nil, fmt.Errorf("readResults: row %d: reward per "+
				"step: %v", i+2, err)
		}
		if r.Rewards, err = strconv.ParseFloat(cell(rewardsCol),
			64); err != nil {
			return nil, fmt.Errorf("readResults: row %d: rewards: %v", i+2,
				err)
		}
		if seed := cell(seedCol); seed != "" {
			if r.Seed, err = strconv.Atoi(seed); err != nil {
				return nil, fmt.Errorf("readResults: row %d: seed: %v", i+2,
					err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// WriteAverages writes the raw results, with the checkpoint split into
// its own column, and the averages to the workbook at path
func WriteAverages(path string, results []evaluate.Result,
	avgs []CheckpointAverage) error {
	f := excelize.NewFile()
	defer f.Close()

	raw := [][]interface{}{{checkpointCol, modelCol, stepsCol, perStepCol,
		rewardsCol, seedCol}}
	for _, r := range results {
		model, ckpt, err := SplitModel(r.Model)
		if err != nil {
			return fmt.Errorf("writeAverages: %v", err)
		}
		raw = append(raw, []interface{}{ckpt, model, r.Steps,
			r.RewardPerStep, r.Rewards, r.Seed})
	}
	if err := writeRows(f, evaluate.Sheet, raw); err != nil {
		return fmt.Errorf("writeAverages: %v", err)
	}

	if _, err := f.NewSheet(AveragesSheet); err != nil {
		return fmt.Errorf("writeAverages: %v", err)
	}
	table := [][]interface{}{{checkpointCol, modelCol, stepsCol, perStepCol,
		rewardsCol}}
	for _, a := range avgs {
		table = append(table, []interface{}{a.Checkpoint, a.Model, a.Steps,
			a.RewardPerStep, a.Rewards})
	}
	if err := writeRows(f, AveragesSheet, table); err != nil {
		return fmt.Errorf("writeAverages: %v", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writeAverages: could not save workbook: %v", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
