package engine_test

import (
	"math"
	"testing"

	"github.com/tahti-audio/tahti"
	"github.com/tahti-audio/tahti/engine"
	"github.com/tahti-audio/tahti/synth"
)

func TestRenderProducesAudio(t *testing.T) {
	cfg := testConfig()
	song := tahti.Song{
		Config: cfg,
		Tracks: []tahti.Track{{Events: []tahti.NoteEvent{
			{Pitch: 60, Velocity: 100, StartTick: 0, Duration: 4},
			{Pitch: 67, Velocity: 100, StartTick: 4, Duration: 4},
		}}},
	}
	s := synth.NewSynth(cfg.SampleRate, cfg.Polyphony, synth.DefaultOptions())
	buf, err := engine.Render(cfg, song.Snapshot(), s)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// eight ticks of song at 480 samples per tick, plus a release tail
	// that ends once the last voice goes quiet
	if len(buf) < 8*480 {
		t.Fatalf("rendered %d frames, shorter than the song", len(buf))
	}
	if len(buf) > 8*480+cfg.SampleRate {
		t.Fatalf("rendered %d frames, the release tail never ended", len(buf))
	}
	if peak := peakAbs(buf[:2000]); peak == 0 {
		t.Error("the first note rendered as silence")
	}
	for i, frame := range buf {
		for chn, s := range frame {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				t.Fatalf("frame %d channel %d is %f", i, chn, s)
			}
		}
	}
}

func TestRenderRejectsEmptySources(t *testing.T) {
	cfg := testConfig()
	s := synth.NewSynth(cfg.SampleRate, cfg.Polyphony, synth.DefaultOptions())
	if _, err := engine.Render(cfg, nil, s); err == nil {
		t.Error("rendering a nil source did not fail")
	}
	empty := tahti.Song{Config: cfg}
	if _, err := engine.Render(cfg, empty.Snapshot(), s); err == nil {
		t.Error("rendering an empty song did not fail")
	}
}

func peakAbs(buf tahti.AudioBuffer) float32 {
	var peak float32
	for _, frame := range buf {
		for _, s := range frame {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	return peak
}
