package tracker

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// Keys under which the training loop logs the values shown in the
// display banner and the batch size
const (
	EpisodeKey    = "_Episode"
	MeanRewardKey = "_MeanReward"
	StepsKey      = "Steps"
)

// TimeFormat is the layout of the timestamp in log directory names
const TimeFormat = "2006-01-02_15h_04m_05s"

// Logger writes one CSV row per training iteration. Values are
// accumulated with Log and written with Write. The columns of the file
// are the keys of the first row written, in the order they were first
// logged. Cells of columns missing from a later row are written as NaN.
type Logger struct {
	file *os.File
	path string

	// table holds the single pending row once the columns are known
	table   *etable.Table
	columns map[string]bool

	order []string
	row   map[string]float64

	// Out receives the display banner of each written row
	Out io.Writer
}

// NewLogger creates the log file
// root/envName/csvs/<now>--<runID>/log.csv
func NewLogger(root, envName, runID string, now time.Time) (*Logger,
	error) {
	dir := filepath.Join(root, envName, "csvs",
		now.Format(TimeFormat)+"--"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("newLogger: could not create log "+
			"directory: %v", err)
	}

	path := filepath.Join(dir, "log.csv")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("newLogger: could not create log file: %v",
			err)
	}

	return &Logger{
		file: file,
		path: path,
		row:  make(map[string]float64),
		Out:  os.Stdout,
	}, nil
}

// Path returns the path of the log file
func (l *Logger) Path() string {
	return l.path
}

// Log merges items into the pending row. Later values of a key replace
// earlier ones. New keys named in order are appended first, in that
// order, and any remaining new keys follow in sorted order.
func (l *Logger) Log(items map[string]float64, order ...string) {
	keys := make([]string, 0, len(items))
	for _, k := range order {
		if _, ok := items[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(items))
	for k := range items {
		if !contains(keys, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	for _, k := range keys {
		if _, ok := l.row[k]; !ok {
			l.order = append(l.order, k)
		}
		l.row[k] = items[k]
	}
}

// Write writes the pending row to the log file and starts a new row.
// If display is true, the row is also printed to Out.
func (l *Logger) Write(display bool) error {
	if display {
		l.display()
	}

	if l.table == nil {
		if err := l.writeHeader(); err != nil {
			return err
		}
	}

	for k := range l.row {
		if !l.columns[k] {
			return fmt.Errorf("write: key %q is not a column of the log", k)
		}
	}

	for _, k := range l.table.ColNames {
		v, ok := l.row[k]
		if !ok {
			v = math.NaN()
		}
		l.table.SetCellFloat(k, 0, v)
	}
	if err := l.table.WriteCSVRow(l.file, 0, etable.Comma); err != nil {
		return fmt.Errorf("write: could not write row: %v", err)
	}

	l.row = make(map[string]float64)
	l.order = nil
	return nil
}

// writeHeader fixes the columns of the log to the keys of the pending
// row and writes them to the log file
func (l *Logger) writeHeader() error {
	schema := make(etable.Schema, len(l.order))
	l.columns = make(map[string]bool, len(l.order))
	for i, k := range l.order {
		schema[i] = etable.Column{Name: k, Type: etensor.FLOAT64}
		l.columns[k] = true
	}

	l.table = &etable.Table{}
	l.table.SetFromSchema(schema, 1)
	if _, err := l.table.WriteCSVHeaders(l.file, etable.Comma); err != nil {
		return fmt.Errorf("write: could not write header: %v", err)
	}
	return nil
}

// display prints the episode, mean reward, and every key that does not
// begin with an underscore
func (l *Logger) display() {
	keys := make([]string, 0, len(l.row))
	for k := range l.row {
		if !strings.HasPrefix(k, "_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fmt.Fprintf(l.Out, "***** Episode %v, Mean R = %.1f *****\n",
		l.row[EpisodeKey], l.row[MeanRewardKey])
	for _, k := range keys {
		fmt.Fprintf(l.Out, "%s: %.3g\n", k, l.row[k])
	}
	fmt.Fprint(l.Out, "\n\n")
}

// Close closes the log file
func (l *Logger) Close() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close: %v", err)
	}
	return nil
}

// ReadColumns reads a log file written by a Logger and returns each
// column by name. Missing cells are read as NaN.
func ReadColumns(path string) (map[string][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("readColumns: could not open log: %v", err)
	}
	defer file.Close()

	dt := &etable.Table{}
	if err := dt.ReadCSV(file, etable.Comma); err != nil {
		return nil, fmt.Errorf("readColumns: could not read log: %v", err)
	}
	if dt.NumCols() == 0 {
		return nil, fmt.Errorf("readColumns: empty log %v", path)
	}

	columns := make(map[string][]float64, dt.NumCols())
	for _, k := range dt.ColNames {
		column := make([]float64, dt.Rows)
		for row := range column {
			column[row] = dt.CellFloat(k, row)
		}
		columns[k] = column
	}
	return columns, nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
