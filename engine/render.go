package engine

import (
	"errors"
	"fmt"

	"github.com/tahti-audio/tahti"
)

// renderChunk is the buffer size used for offline rendering.
const renderChunk = 512

// renderTailCap bounds how long Render waits for release tails after the
// last tick of the source, in seconds of audio.
const renderTailCap = 10

// Render plays the source through a fresh player from start to end and
// returns the rendered audio. Looping is disabled and live input ignored;
// the render runs at the configured tempo until the source is exhausted and
// every voice has gone quiet, or until the tail cap for instruments that
// never go quiet on their own.
func Render(cfg tahti.Config, src tahti.EventSource, instruments ...tahti.Instrument) (tahti.AudioBuffer, error) {
	if src == nil {
		return nil, errors.New("cannot render a nil source")
	}
	length := src.Length()
	if length <= 0 {
		return nil, errors.New("cannot render a source without length")
	}
	cfg.Loop = tahti.LoopRange{}
	broker := NewBroker()
	p, err := NewPlayer(broker, cfg, instruments...)
	if err != nil {
		return nil, fmt.Errorf("Render failed: %w", err)
	}
	t := p.Transport()
	t.SetSource(src)
	t.PlayFrom(0)

	spt := tahti.SamplesPerTick(cfg.BPM, cfg.PPQ, cfg.SampleRate)
	buffer := make(tahti.AudioBuffer, 0, int(float64(length)*spt)+cfg.SampleRate)
	chunk := make(tahti.AudioBuffer, renderChunk)
	tail := 0
	for {
		p.Process(chunk, NullPlayerProcessContext{})
		buffer = append(buffer, chunk...)
		if p.clock.tick < length {
			continue
		}
		if p.voices.ActiveVoices() == 0 {
			break
		}
		if tail += len(chunk); tail > renderTailCap*cfg.SampleRate {
			break
		}
	}
	return buffer, nil
}
