package tahti

import "fmt"

type (
	// Tick is the smallest unit of musical time. A quarter note lasts PPQ
	// ticks, where PPQ comes from the Config; all positions, loop bounds and
	// note timestamps in a song are expressed in ticks. Ticks are independent
	// of tempo: changing the BPM changes how many samples one tick lasts, not
	// how many ticks a note spans.
	Tick int64

	// TransportState tells what the playback engine is currently doing.
	// Transitions between the states form a finite state machine, implemented
	// by the engine; invalid requests are clamped to the nearest legal
	// transition rather than corrupting the state.
	TransportState uint8

	// LoopRange is a half-open tick range [Start, End) that playback wraps
	// back into when Enabled. A zero LoopRange is valid and means no looping.
	LoopRange struct {
		Start   Tick
		End     Tick
		Enabled bool `yaml:",omitempty"`
	}

	// Position is a complete description of the playhead at one instant,
	// derived from a single atomically published snapshot, so the fields are
	// always consistent with each other: Tick never mixes with a State from a
	// different moment. Bar, Beat and Subtick are the musical reading of Tick
	// given the configured PPQ and BeatsPerBar; Frame counts every sample the
	// engine has rendered since it was created, also while not playing.
	Position struct {
		Tick    Tick
		Bar     int
		Beat    int
		Subtick int
		State   TransportState
		Frame   int64
	}
)

const (
	Stopped TransportState = iota
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	}
	return fmt.Sprintf("TransportState(%d)", int(s))
}

// Len returns the length of the loop in ticks.
func (l LoopRange) Len() Tick {
	return l.End - l.Start
}

// Contains reports whether t falls inside the half-open range [Start, End).
func (l LoopRange) Contains(t Tick) bool {
	return t >= l.Start && t < l.End
}

// Wrap maps a position that ran past the loop end back into the loop, so that
// the excess ticks continue from Start. Positions before End are returned
// unchanged, as are all positions when the loop is disabled or degenerate.
func (l LoopRange) Wrap(t Tick) Tick {
	if !l.Enabled || l.Len() <= 0 || t < l.End {
		return t
	}
	return l.Start + (t-l.End)%l.Len()
}

// Clamp forces t into the loop bounds, to the nearest bound if outside. The
// end bound is allowed even though the range is half-open; a playing engine
// wraps from there on the next advance.
func (l LoopRange) Clamp(t Tick) Tick {
	if t < l.Start {
		return l.Start
	}
	if t > l.End {
		return l.End
	}
	return t
}

func (l LoopRange) Validate() error {
	if l.Start < 0 {
		return fmt.Errorf("loop start %d is negative", l.Start)
	}
	if l.End < l.Start {
		return fmt.Errorf("loop end %d is before loop start %d", l.End, l.Start)
	}
	return nil
}

// BarsBeats splits the tick into its musical reading: the zero-based bar and
// beat, and the subtick offset within the beat. ppq and beatsPerBar must be
// positive; ticks are never negative so plain integer division suffices.
func (t Tick) BarsBeats(ppq, beatsPerBar int) (bar, beat, subtick int) {
	beats := int(t) / ppq
	return beats / beatsPerBar, beats % beatsPerBar, int(t) % ppq
}

// Playing reports whether the transport was running when the position was
// read.
func (p Position) Playing() bool {
	return p.State == Playing
}

// TicksPerSample returns how many ticks one output sample advances the
// playhead at the given tempo and resolution. The value is fractional; the
// engine carries the remainder from buffer to buffer so long playback does
// not drift.
func TicksPerSample(bpm float64, ppq, sampleRate int) float64 {
	return bpm * float64(ppq) / (60 * float64(sampleRate))
}

// SamplesPerTick is the inverse of TicksPerSample.
func SamplesPerTick(bpm float64, ppq, sampleRate int) float64 {
	return 60 * float64(sampleRate) / (bpm * float64(ppq))
}
