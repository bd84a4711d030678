package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/glog"
)

// WarmupEpisodes is the number of episodes run before training begins.
// No checkpoint is ever taken at exactly this many episodes.
const WarmupEpisodes = 5

// episode implements checkpointing every N episodes
type episode struct {
	interval int

	// objects maps file names, relative to the checkpoint directory, to
	// the objects saved in them
	objects map[string]Serializable

	// dir returns the directory of the checkpoint taken after the given
	// number of episodes, for example Paths.Checkpoint
	dir func(episode int) string
}

// NewEpisode returns a checkpointer that saves each of objects, keyed
// by their file names relative to the checkpoint directory, after
// every interval episodes.
func NewEpisode(interval int, objects map[string]Serializable,
	dir func(episode int) string) (Checkpointer, error) {
	if interval < 1 {
		return nil, fmt.Errorf("newEpisode: interval must be positive "+
			"\n\thave(%v)", interval)
	}
	return &episode{
		interval: interval,
		objects:  objects,
		dir:      dir,
	}, nil
}

// Due returns whether a checkpoint is taken after episode episodes
// with the given interval. Checkpoints are taken at multiples of the
// interval except for 0 and WarmupEpisodes.
func Due(episode, interval int) bool {
	return episode%interval == 0 && episode != 0 && episode != WarmupEpisodes
}

// Checkpoint saves each tracked object by calling its Save() method if
// a checkpoint is due
func (e *episode) Checkpoint(episode int) (bool, error) {
	if !Due(episode, e.interval) {
		return false, nil
	}

	dir := e.dir(episode)
	names := make([]string, 0, len(e.objects))
	for name := range e.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		filename := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
			return false, fmt.Errorf("checkpoint: could not create "+
				"directory for %v: %v", name, err)
		}
		if err := e.objects[name].Save(filename); err != nil {
			return false, fmt.Errorf("checkpoint: could not save %v: %v",
				name, err)
		}
	}

	glog.Infof("checkpoint: saved episode %d to %v", episode, dir)
	return true, nil
}
