package evaluate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is the name of the worksheet holding evaluation results
const Sheet = "Sheet1"

// Columns of the results worksheet
var Columns = []string{"Model", "Steps", "Reward Divided by Steps",
	"Rewards", "Seed"}

// WriteExcel writes results to the xlsx workbook at path, one row per
// result below a header row of Columns.
func WriteExcel(path string, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(Columns))
	for i, col := range Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(Sheet, "A1", &header); err != nil {
		return fmt.Errorf("writeExcel: %v", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("writeExcel: %v", err)
		}
		row := []interface{}{r.Model, r.Steps, r.RewardPerStep, r.Rewards,
			r.Seed}
		if err := f.SetSheetRow(Sheet, cell, &row); err != nil {
			return fmt.Errorf("writeExcel: %v", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("writeExcel: could not create directory: %v",
				err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writeExcel: could not save workbook: %v", err)
	}
	return nil
}
