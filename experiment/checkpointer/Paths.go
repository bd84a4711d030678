package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Names of the files in a checkpoint directory, relative to it
const (
	ScalerFile  = "info/scaler.gob"
	PolicyFile  = "policy.gob"
	ValueFnFile = "valuefn.gob"
)

// RunIDWidth is the number of digits of a run directory name
const RunIDWidth = 3

// Paths locates the directories of a single training run. A run saves
// checkpoint e to ModelRoot/RunID/e.
type Paths struct {
	ModelRoot string
	RunID     string
}

// Run returns the directory of the run
func (p Paths) Run() string {
	return filepath.Join(p.ModelRoot, p.RunID)
}

// Checkpoint returns the directory of the checkpoint taken after
// episode episodes
func (p Paths) Checkpoint(episode int) string {
	return filepath.Join(p.Run(), strconv.Itoa(episode))
}

// ScalerPath returns the path of the scaler in a checkpoint directory
func ScalerPath(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(ScalerFile))
}

// PolicyPath returns the path of the policy in a checkpoint directory
func PolicyPath(dir string) string {
	return filepath.Join(dir, PolicyFile)
}

// ValueFnPath returns the path of the value function in a checkpoint
// directory
func ValueFnPath(dir string) string {
	return filepath.Join(dir, ValueFnFile)
}

// NextRunDir creates and returns the directory of a new run under
// root. Runs are numbered 001, 002, ... with the new run numbered one
// higher than the highest numbered directory already in root. Entries
// of root whose names are not numbers are ignored.
func NextRunDir(root string) (name, path string, err error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", "", fmt.Errorf("nextRunDir: could not create model "+
			"root: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", "", fmt.Errorf("nextRunDir: could not read model "+
			"root: %v", err)
	}

	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}

	name = FilenameEnumerator(highest, RunIDWidth, "", "")()
	path = filepath.Join(root, name)
	if err := os.Mkdir(path, 0755); err != nil {
		return "", "", fmt.Errorf("nextRunDir: could not create run "+
			"directory: %v", err)
	}
	return name, path, nil
}
