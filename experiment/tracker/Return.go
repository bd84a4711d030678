package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/gotrpo/timestep"
)

// Return tracks the episodic return. When an environment returns a
// TimeStep, this Tracker will extract the reward, or the named Info
// value, and accumulate it for each episode.
//
// Locomotion tasks are often evaluated on the distance travelled
// rather than the training reward, which is tracked by a Return on the
// timestep.XVelocity Info key.
type Return struct {
	key            string
	lastTimeStep   int
	inEpisode      bool
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker of the rewards
func NewReturn() *Return {
	return &Return{lastTimeStep: -1}
}

// NewInfoReturn creates and returns a new *Return Tracker of the Info
// value named key. Timesteps that do not report the value fall back
// to the reward.
func NewInfoReturn(key string) *Return {
	return &Return{key: key, lastTimeStep: -1}
}

// Track tracks the value seen on a timestep. The first timestep of an
// episode carries no reward and only starts the episode.
//
// Track panics if it is called for non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		r.EndEpisode()
		r.inEpisode = true
		r.lastTimeStep = step.Number
		return
	}

	if r.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number)
		panic(msg)
	}

	r.inEpisode = true
	r.currentReturn += r.value(step)
	r.lastTimeStep = step.Number

	if step.Last() {
		r.EndEpisode()
	}
}

func (r *Return) value(step ts.TimeStep) float64 {
	if r.key != "" {
		if v, ok := step.InfoValue(r.key); ok {
			return v
		}
	}
	return step.Reward
}

// EndEpisode caches the return of the current episode and begins
// tracking a new one
func (r *Return) EndEpisode() {
	if !r.inEpisode {
		return
	}
	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.currentReturn = 0.0
	r.lastTimeStep = -1
	r.inEpisode = false
}

// Returns returns the returns of all closed episodes
func (r *Return) Returns() []float64 {
	return append([]float64(nil), r.episodeReturns...)
}

// Save saves the episodic returns to disk
func (r *Return) Save(filename string) error {
	return save(filename, r.episodeReturns)
}
