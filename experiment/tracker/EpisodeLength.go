package tracker

import ts "github.com/samuelfneumann/gotrpo/timestep"

// EpisodeLength tracks the number of steps taken in each episode
type EpisodeLength struct {
	current        int
	inEpisode      bool
	episodeLengths []int
}

// NewEpisodeLength creates and returns a new *EpisodeLength Tracker
func NewEpisodeLength() *EpisodeLength {
	return &EpisodeLength{}
}

// Track tracks a timestep
func (e *EpisodeLength) Track(t ts.TimeStep) {
	if t.First() {
		e.EndEpisode()
		e.inEpisode = true
		return
	}

	e.inEpisode = true
	e.current++
	if t.Last() {
		e.EndEpisode()
	}
}

// EndEpisode caches the length of the current episode
func (e *EpisodeLength) EndEpisode() {
	if !e.inEpisode {
		return
	}
	e.episodeLengths = append(e.episodeLengths, e.current)
	e.current = 0
	e.inEpisode = false
}

// Lengths returns the lengths of all closed episodes
func (e *EpisodeLength) Lengths() []int {
	return append([]int(nil), e.episodeLengths...)
}

// Save saves the episode lengths to disk
func (e *EpisodeLength) Save(filename string) error {
	return save(filename, e.episodeLengths)
}
