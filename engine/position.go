package engine

import (
	"github.com/tahti-audio/tahti"
)

// PositionReader derives display positions from the player's published
// state. Reads are wait-free: one atomic load of the latest snapshot, then
// plain arithmetic on the copy, so any number of goroutines can poll it
// concurrently with playback. Tick, bar and transport state in one result
// always come from the same snapshot.
type PositionReader struct {
	clock       *clock
	ppq         int
	beatsPerBar int
	sampleRate  int
}

// Position returns the playhead as a musical position.
func (r *PositionReader) Position() tahti.Position {
	s := r.clock.load()
	bar, beat, sub := s.Tick.BarsBeats(r.ppq, r.beatsPerBar)
	return tahti.Position{
		Tick:    s.Tick,
		Bar:     bar,
		Beat:    beat,
		Subtick: sub,
		State:   s.State,
		Frame:   s.Frame,
	}
}

// Tick returns just the playhead tick.
func (r *PositionReader) Tick() tahti.Tick {
	return r.clock.load().Tick
}

// Playing reports whether the transport is running.
func (r *PositionReader) Playing() bool {
	return r.clock.load().State == tahti.Playing
}

// State returns the transport state.
func (r *PositionReader) State() tahti.TransportState {
	return r.clock.load().State
}

// Loop returns the loop region as of the latest snapshot.
func (r *PositionReader) Loop() tahti.LoopRange {
	return r.clock.load().Loop
}

// TicksPerSample returns the current tempo as the tick increment per
// output sample.
func (r *PositionReader) TicksPerSample() float64 {
	return r.clock.load().TicksPerSample
}

// Seconds converts the frames rendered so far to wall-clock seconds.
func (r *PositionReader) Seconds() float64 {
	return float64(r.clock.load().Frame) / float64(r.sampleRate)
}
