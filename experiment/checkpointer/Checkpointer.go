// Package checkpointer implements saving of training state to disk at
// fixed episode intervals, and the on-disk layout of saved runs.
package checkpointer

import (
	"encoding/gob"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
	Save(filename string) error
}

// Checkpointer checkpoints/saves serializable objects based on the
// number of completed episodes
type Checkpointer interface {
	// Checkpoint saves the tracked objects if a checkpoint is due after
	// episode episodes and reports whether it did
	Checkpoint(episode int) (bool, error)
}
