package metrics

import (
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gotrpo/evaluate"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestDescribe(t *testing.T) {
	if _, ok := Describe(nil); ok {
		t.Error("describe of no values should not be ok")
	}

	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{"single", []float64{3}, Stats{N: 1, Mean: 3, Median: 3, Std: 0}},
		{"odd", []float64{5, 1, 3}, Stats{N: 3, Mean: 3, Median: 3, Std: 2}},
		{"even", []float64{4, 1, 3, 2}, Stats{N: 4, Mean: 2.5, Median: 2.5,
			Std: 1.2909944487358056}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			have, ok := Describe(test.values)
			if !ok {
				t.Fatal("expected ok")
			}
			if have.N != test.want.N ||
				!scalar.EqualWithinAbs(have.Mean, test.want.Mean, 1e-12) ||
				!scalar.EqualWithinAbs(have.Median, test.want.Median, 1e-12) ||
				!scalar.EqualWithinAbs(have.Std, test.want.Std, 1e-12) {
				t.Errorf("\n\twant(%+v)\n\thave(%+v)", test.want, have)
			}
		})
	}

	values := []float64{3, 1, 2}
	Describe(values)
	if values[0] != 3 || values[1] != 1 {
		t.Error("describe should not reorder its input")
	}
}

func TestSplitModel(t *testing.T) {
	model, ckpt, err := SplitModel("001/250")
	if err != nil || model != "001" || ckpt != "250" {
		t.Errorf("splitModel(001/250) = %v, %v, %v", model, ckpt, err)
	}

	for _, name := range []string{"001", "001/", "/250", "a/b/c", ""} {
		if _, _, err := SplitModel(name); err == nil {
			t.Errorf("splitModel(%q): expected an error", name)
		}
	}
}

var results = []evaluate.Result{
	{Model: "002/100", Steps: 10, RewardPerStep: 1, Rewards: 10, Seed: 0},
	{Model: "001/1000", Steps: 30, RewardPerStep: 2, Rewards: 60, Seed: 0},
	{Model: "001/200", Steps: 4, RewardPerStep: 0.5, Rewards: 2, Seed: 0},
	{Model: "002/100", Steps: 20, RewardPerStep: 3, Rewards: 60, Seed: 1},
	{Model: "001/1000", Steps: 10, RewardPerStep: 1, Rewards: 10, Seed: 1},
	{Model: "001/200", Steps: 6, RewardPerStep: 0.5, Rewards: 3, Seed: 1},
}

func TestAverage(t *testing.T) {
	avgs, err := Average(results)
	if err != nil {
		t.Fatal(err)
	}

	want := []CheckpointAverage{
		{Model: "001", Checkpoint: 200, Steps: 5, RewardPerStep: 0.5,
			Rewards: 2.5},
		{Model: "001", Checkpoint: 1000, Steps: 20, RewardPerStep: 1.5,
			Rewards: 35},
		{Model: "002", Checkpoint: 100, Steps: 15, RewardPerStep: 2,
			Rewards: 35},
	}
	if len(avgs) != len(want) {
		t.Fatalf("averages \n\twant(%v)\n\thave(%v)", want, avgs)
	}
	for i := range want {
		if avgs[i] != want[i] {
			t.Errorf("average %d \n\twant(%+v)\n\thave(%+v)", i, want[i],
				avgs[i])
		}
	}

	reindexed := Reindex(avgs)
	for i, want := range []int{0, 1, 0} {
		if reindexed[i].Checkpoint != want {
			t.Errorf("reindexed checkpoint %d \n\twant(%v)\n\thave(%v)", i,
				want, reindexed[i].Checkpoint)
		}
	}
	if avgs[1].Checkpoint != 1000 {
		t.Error("reindex should not modify its input")
	}

	final := Final(avgs)
	if len(final) != 2 || final[0] != want[1] || final[1] != want[2] {
		t.Errorf("final \n\twant(%v)\n\thave(%v)", want[1:], final)
	}
}

func TestAverageInvalid(t *testing.T) {
	for _, model := range []string{"001", "001/last"} {
		_, err := Average([]evaluate.Result{{Model: model, Steps: 1}})
		if err == nil {
			t.Errorf("average of %q: expected an error", model)
		}
	}
}

func TestWriteReadAverages(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "results.xlsx")
	if err := evaluate.WriteExcel(input, results); err != nil {
		t.Fatal(err)
	}

	read, err := ReadResults(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(read) != len(results) {
		t.Fatalf("read %v results, want %v", len(read), len(results))
	}
	for i := range results {
		if read[i] != results[i] {
			t.Errorf("result %d \n\twant(%v)\n\thave(%v)", i, results[i],
				read[i])
		}
	}

	avgs, err := Average(read)
	if err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "averages.xlsx")
	if err := WriteAverages(output, read, avgs); err != nil {
		t.Fatal(err)
	}

	// The split workbook reads back into the same results
	again, err := ReadResults(output)
	if err != nil {
		t.Fatal(err)
	}
	for i := range results {
		if again[i] != results[i] {
			t.Errorf("result %d \n\twant(%v)\n\thave(%v)", i, results[i],
				again[i])
		}
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(AveragesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(avgs)+1 {
		t.Fatalf("expected %v rows, have %v", len(avgs)+1, len(rows))
	}
	if rows[0][0] != "Checkpoint" || rows[1][0] != "200" ||
		rows[1][1] != "001" {
		t.Errorf("unexpected averages %v", rows)
	}
}

func TestReadResultsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	f := excelize.NewFile()
	row := []interface{}{"Model", "Steps"}
	if err := f.SetSheetRow(evaluate.Sheet, "A1", &row); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := ReadResults(path); err == nil {
		t.Error("expected an error for missing columns")
	}
}
