// Package tracker implements tracking of per-episode data during
// training and evaluation, and the CSV log of training iterations.
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/gotrpo/timestep"
)

// Interface Tracker keeps track of per-episode data from the timesteps
// of an environment
type Tracker interface {
	Track(t ts.TimeStep)

	// EndEpisode closes the current episode, if one is in progress.
	// Episodes that end on a Last timestep are closed by Track.
	EndEpisode()

	// Save saves the data of all closed episodes to a file
	Save(filename string) error
}

// save gob encodes data to a file
func save(filename string, data interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

// LoadData loads and returns the data saved by a Return Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %v", err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}
