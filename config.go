package tahti

import (
	"errors"
	"fmt"
)

// MaxPolyphony is the hard upper bound for the voice pool size. The pool is a
// fixed arena scanned linearly in the audio callback, so an absurdly large
// pool would turn every trigger into a long scan.
const MaxPolyphony = 128

// Config carries everything the engine needs to know before the real-time
// path is armed. It is validated once at player creation; after that, tempo
// and loop changes travel as transport intents and the rest of the fields are
// immutable for the engine's lifetime.
type Config struct {
	// SampleRate of the output device, in Hz.
	SampleRate int

	// PPQ is the tick resolution: pulses (ticks) per quarter note.
	PPQ int

	// BPM is the initial tempo in beats per minute. Fractional tempos are
	// allowed.
	BPM float64

	// BeatsPerBar sets how Position splits ticks into bars and beats.
	BeatsPerBar int

	// Loop is the initial loop range; it can be changed while running.
	Loop LoopRange

	// Polyphony is the size of the voice pool shared by all instruments.
	Polyphony int

	// StealGuardMs protects freshly triggered voices: a voice younger than
	// this is never stolen, and if every candidate is that young the new note
	// is dropped instead.
	StealGuardMs int `yaml:"stealguardms,omitempty"`

	// StopReturnsToLoopStart makes stop rewind to the loop start instead of
	// tick zero when a loop is enabled.
	StopReturnsToLoopStart bool `yaml:",omitempty"`

	// LookaheadMs is the scheduling prefetch margin. Zero disables
	// prefetching; triggers stay sample-accurate either way, the margin only
	// moves content lookups off the deadline edge.
	LookaheadMs int `yaml:"lookaheadms,omitempty"`
}

const (
	minSampleRate = 8000
	maxSampleRate = 192000
	maxPPQ        = 1920
	MinBPM        = 1
	MaxBPM        = 999
)

// DefaultConfig returns the configuration used when a song file does not
// specify one: 44.1 kHz, 48 ticks per quarter, 120 BPM in 4/4, 16 voices.
func DefaultConfig() Config {
	return Config{
		SampleRate:   44100,
		PPQ:          48,
		BPM:          120,
		BeatsPerBar:  4,
		Polyphony:    16,
		StealGuardMs: 20,
		LookaheadMs:  20,
	}
}

// Validate checks that the configuration can actually drive the real-time
// path. Errors here are fatal and should abort startup; nothing is clamped,
// because a silently adjusted sample rate or PPQ would make every saved song
// play wrong.
func (c *Config) Validate() error {
	if c.SampleRate < minSampleRate || c.SampleRate > maxSampleRate {
		return fmt.Errorf("sample rate %d outside %d..%d", c.SampleRate, minSampleRate, maxSampleRate)
	}
	if c.PPQ < 1 || c.PPQ > maxPPQ {
		return fmt.Errorf("ppq %d outside 1..%d", c.PPQ, maxPPQ)
	}
	if c.BPM < MinBPM || c.BPM > MaxBPM {
		return fmt.Errorf("bpm %v outside %d..%d", c.BPM, MinBPM, MaxBPM)
	}
	if c.BeatsPerBar < 1 {
		return errors.New("beats per bar should be > 0")
	}
	if c.Polyphony < 1 || c.Polyphony > MaxPolyphony {
		return fmt.Errorf("polyphony %d outside 1..%d", c.Polyphony, MaxPolyphony)
	}
	if c.StealGuardMs < 0 {
		return errors.New("steal guard should not be negative")
	}
	if c.LookaheadMs < 0 {
		return errors.New("lookahead should not be negative")
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("invalid loop: %w", err)
	}
	if c.Loop.Enabled && c.Loop.Len() < Tick(c.PPQ)/4 {
		return fmt.Errorf("enabled loop of %d ticks is shorter than a 16th note", c.Loop.Len())
	}
	return nil
}

// TicksPerSample returns the tick advance per sample at the initial tempo.
func (c *Config) TicksPerSample() float64 {
	return TicksPerSample(c.BPM, c.PPQ, c.SampleRate)
}

// StealGuardSamples converts the steal guard to samples at the configured
// rate.
func (c *Config) StealGuardSamples() int64 {
	return int64(c.StealGuardMs) * int64(c.SampleRate) / 1000
}

// LookaheadTicks converts the prefetch margin to ticks at the initial tempo.
// The engine recomputes this when the tempo changes.
func (c *Config) LookaheadTicks() Tick {
	return Tick(float64(c.LookaheadMs) / 1000 * float64(c.SampleRate) * c.TicksPerSample())
}
