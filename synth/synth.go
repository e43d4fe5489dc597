// Package synth implements a small polyphonic subtractive synth: one
// oscillator per voice through a state variable filter, shaped by a linear
// ADSR envelope. It is deliberately plain, no anti-aliasing or modulation,
// but it is sample-accurate: triggers and releases land on the exact offset
// the engine asks for.
package synth

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/tahti-audio/tahti"
)

type (
	Waveform int

	// Options are the voice parameters, shared by all voices of one synth.
	// Times are in seconds, Sustain is a level between 0 and 1, Cutoff is
	// in Hz and Resonance is the filter Q.
	Options struct {
		Wave      Waveform `yaml:"wave,omitempty"`
		Attack    float32  `yaml:"attack,omitempty"`
		Decay     float32  `yaml:"decay,omitempty"`
		Sustain   float32  `yaml:"sustain"`
		Release   float32  `yaml:"release,omitempty"`
		Cutoff    float32  `yaml:"cutoff,omitempty"`
		Resonance float32  `yaml:"resonance,omitempty"`
		Gain      float32  `yaml:"gain,omitempty"`
	}

	// Synth is a fixed pool of voices implementing tahti.Instrument. All
	// methods are meant to be called from the audio goroutine only; none of
	// them allocate.
	Synth struct {
		sampleRate int
		opts       Options
		voices     []voice

		// per-sample steps and coefficients derived from the options
		attackStep  float32
		decayStep   float32
		releaseStep float32
		filterCoeff float32
		filterQInv  float32
	}

	voice struct {
		phase    float32
		freq     float32
		velocity float32
		env      envelope
		filter   svf

		// sample offsets within the next rendered buffer, -1 when none
		triggerAt int
		releaseAt int
		pitch     byte
	}

	envelope struct {
		phase envPhase
		value float32
	}

	envPhase uint8

	// svf is a Chamberlin state variable filter; stable up to about fs/6.
	svf struct {
		low  float32
		band float32
	}
)

const (
	Saw Waveform = iota
	Square
	Sine
	Triangle
)

const (
	envIdle envPhase = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

var waveformNames = [...]string{"saw", "square", "sine", "triangle"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return "???"
	}
	return waveformNames[w]
}

func (w Waveform) MarshalYAML() (any, error) {
	return w.String(), nil
}

func (w *Waveform) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	for i, n := range waveformNames {
		if n == name {
			*w = Waveform(i)
			return nil
		}
	}
	return fmt.Errorf("unknown waveform %q", name)
}

func DefaultOptions() Options {
	return Options{
		Wave:      Saw,
		Attack:    0.001,
		Decay:     0.1,
		Sustain:   1,
		Release:   0.05,
		Cutoff:    1000,
		Resonance: 0.707,
		Gain:      1,
	}
}

// NewSynth creates a synth with the given number of voices. Out-of-range
// option values are clamped rather than rejected, so a sloppy instrument
// definition still makes a sound.
func NewSynth(sampleRate, numVoices int, opts Options) *Synth {
	if opts.Sustain < 0 {
		opts.Sustain = 0
	} else if opts.Sustain > 1 {
		opts.Sustain = 1
	}
	if opts.Cutoff < 20 {
		opts.Cutoff = 20
	} else if opts.Cutoff > 20000 {
		opts.Cutoff = 20000
	}
	if opts.Resonance < 0.1 {
		opts.Resonance = 0.1
	}
	if opts.Gain == 0 {
		opts.Gain = 1
	}
	s := &Synth{
		sampleRate:  sampleRate,
		opts:        opts,
		voices:      make([]voice, numVoices),
		attackStep:  envStep(opts.Attack, 1, sampleRate),
		decayStep:   envStep(opts.Decay, 1-opts.Sustain, sampleRate),
		releaseStep: envStep(opts.Release, 1, sampleRate),
		filterCoeff: 2 * float32(math.Sin(math.Pi*float64(opts.Cutoff)/float64(sampleRate))),
		filterQInv:  1 / opts.Resonance,
	}
	for i := range s.voices {
		s.voices[i].triggerAt = -1
		s.voices[i].releaseAt = -1
	}
	return s
}

// envStep converts a segment duration to the per-sample envelope increment
// covering dist. A zero or negative duration jumps the whole distance in
// one sample.
func envStep(seconds, dist float32, sampleRate int) float32 {
	samples := seconds * float32(sampleRate)
	if samples <= 0 {
		return dist
	}
	return dist / samples
}

// Trigger starts a note on the voice at the given sample offset of the next
// rendered buffer. The envelope restarts from its current value, so a
// stolen voice glides into the new attack instead of clicking.
func (s *Synth) Trigger(v int, pitch, velocity byte, offset int) {
	if v < 0 || v >= len(s.voices) {
		return
	}
	s.voices[v].pitch = pitch
	s.voices[v].velocity = float32(velocity) / 127
	s.voices[v].triggerAt = offset
}

// Release moves the voice into its release segment at the given sample
// offset of the next rendered buffer.
func (s *Synth) Release(v int, offset int) {
	if v < 0 || v >= len(s.voices) {
		return
	}
	s.voices[v].releaseAt = offset
}

// Active reports whether the voice still makes sound; false once the
// release tail has decayed to silence.
func (s *Synth) Active(v int) bool {
	if v < 0 || v >= len(s.voices) {
		return false
	}
	return s.voices[v].env.phase != envIdle || s.voices[v].triggerAt >= 0
}

// Render adds the output of all sounding voices into buf. It never fails;
// the error is there to satisfy tahti.Instrument.
func (s *Synth) Render(buf tahti.AudioBuffer) error {
	for vi := range s.voices {
		v := &s.voices[vi]
		if v.env.phase == envIdle && v.triggerAt < 0 && v.releaseAt < 0 {
			continue
		}
		for i := range buf {
			// release first: a steal releases and retriggers the voice at
			// the same offset, and the retrigger must win
			if i == v.releaseAt && v.env.phase != envIdle {
				v.env.phase = envRelease
			}
			if i == v.triggerAt {
				v.freq = noteFreq(v.pitch)
				v.env.phase = envAttack
			}
			if v.env.phase == envIdle {
				continue
			}
			signal := v.oscillate(s.opts.Wave, float32(s.sampleRate))
			signal = v.filter.lowpass(signal, s.filterCoeff, s.filterQInv)
			gain := v.envelopeStep(s) * v.velocity * s.opts.Gain
			buf[i][0] += signal * gain
			buf[i][1] += signal * gain
		}
		v.triggerAt, v.releaseAt = -1, -1
	}
	return nil
}

// noteFreq converts a MIDI note number to Hz: 440 * 2^((note-69)/12).
func noteFreq(note byte) float32 {
	return float32(440 * math.Exp2((float64(note)-69)/12))
}

func (v *voice) oscillate(wave Waveform, sampleRate float32) float32 {
	v.phase += v.freq / sampleRate
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch wave {
	case Sine:
		return float32(math.Sin(2 * math.Pi * float64(v.phase)))
	case Square:
		if v.phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		t := v.phase
		if t >= 0.5 {
			t -= 1
		}
		return 4*absf(t) - 1
	default: // Saw
		return 2*v.phase - 1
	}
}

func (v *voice) envelopeStep(s *Synth) float32 {
	e := &v.env
	switch e.phase {
	case envAttack:
		e.value += s.attackStep
		if e.value >= 1 {
			e.value = 1
			e.phase = envDecay
		}
	case envDecay:
		e.value -= s.decayStep
		if e.value <= s.opts.Sustain {
			e.value = s.opts.Sustain
			e.phase = envSustain
		}
	case envSustain:
		e.value = s.opts.Sustain
	case envRelease:
		e.value -= s.releaseStep
		if e.value <= 0 {
			e.value = 0
			e.phase = envIdle
		}
	}
	return e.value
}

func (f *svf) lowpass(input, coeff, qInv float32) float32 {
	f.low += coeff * f.band
	high := input - f.low - qInv*f.band
	f.band += coeff * high
	return f.low
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
