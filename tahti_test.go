package tahti_test

import (
	"math"
	"testing"

	"github.com/tahti-audio/tahti"
)

func TestLoopWrap(t *testing.T) {
	loop := tahti.LoopRange{Start: 480, End: 960, Enabled: true}
	tests := []struct {
		tick, expected tahti.Tick
	}{
		{0, 0},      // before the loop, untouched
		{480, 480},  // at start
		{959, 959},  // just inside
		{960, 480},  // at end, wraps to start
		{1000, 520}, // past end
		{1440, 480}, // exactly one loop length past end
		{1921, 481}, // several lengths past end
	}
	for _, test := range tests {
		if got := loop.Wrap(test.tick); got != test.expected {
			t.Errorf("Wrap(%v) = %v, expected %v", test.tick, got, test.expected)
		}
	}
	disabled := tahti.LoopRange{Start: 480, End: 960}
	if got := disabled.Wrap(1000); got != 1000 {
		t.Errorf("disabled loop Wrap(1000) = %v, expected 1000", got)
	}
	degenerate := tahti.LoopRange{Start: 480, End: 480, Enabled: true}
	if got := degenerate.Wrap(1000); got != 1000 {
		t.Errorf("degenerate loop Wrap(1000) = %v, expected 1000", got)
	}
}

func TestLoopClamp(t *testing.T) {
	loop := tahti.LoopRange{Start: 480, End: 960, Enabled: true}
	tests := []struct {
		tick, expected tahti.Tick
	}{
		{0, 480},
		{480, 480},
		{700, 700},
		{960, 960}, // the end bound is allowed; playback wraps from there
		{1000, 960},
	}
	for _, test := range tests {
		if got := loop.Clamp(test.tick); got != test.expected {
			t.Errorf("Clamp(%v) = %v, expected %v", test.tick, got, test.expected)
		}
	}
}

func TestLoopContains(t *testing.T) {
	loop := tahti.LoopRange{Start: 480, End: 960, Enabled: true}
	if loop.Contains(479) || !loop.Contains(480) || !loop.Contains(959) || loop.Contains(960) {
		t.Errorf("Contains does not treat the range as half-open [480, 960)")
	}
}

func TestBarsBeats(t *testing.T) {
	tests := []struct {
		tick               tahti.Tick
		bar, beat, subtick int
	}{
		{0, 0, 0, 0},
		{47, 0, 0, 47},
		{48, 0, 1, 0},
		{191, 0, 3, 47},
		{192, 1, 0, 0},
		{500, 2, 2, 20},
	}
	for _, test := range tests {
		bar, beat, subtick := test.tick.BarsBeats(48, 4)
		if bar != test.bar || beat != test.beat || subtick != test.subtick {
			t.Errorf("BarsBeats(%v) = %v,%v,%v, expected %v,%v,%v", test.tick, bar, beat, subtick, test.bar, test.beat, test.subtick)
		}
	}
}

func TestTicksPerSample(t *testing.T) {
	tps := tahti.TicksPerSample(120, 48, 44100)
	// 120 BPM at 48 PPQ is 96 ticks per second
	if expected := 96.0 / 44100; math.Abs(tps-expected) > 1e-12 {
		t.Errorf("TicksPerSample = %v, expected %v", tps, expected)
	}
	spt := tahti.SamplesPerTick(120, 48, 44100)
	if math.Abs(tps*spt-1) > 1e-12 {
		t.Errorf("TicksPerSample * SamplesPerTick = %v, expected 1", tps*spt)
	}
}

func TestTransportStateString(t *testing.T) {
	if tahti.Stopped.String() != "Stopped" || tahti.Playing.String() != "Playing" || tahti.Paused.String() != "Paused" {
		t.Errorf("TransportState strings are wrong")
	}
}

func TestAudioBufferSource(t *testing.T) {
	buf := tahti.AudioBuffer{{1, 2}, {3, 4}, {5, 6}}
	source := buf.Source()
	out := make(tahti.AudioBuffer, 2)
	if err := source(out); err != nil {
		t.Fatalf("first read errored: %v", err)
	}
	if out[0] != [2]float32{1, 2} || out[1] != [2]float32{3, 4} {
		t.Fatalf("first read returned %v", out)
	}
	if err := source(out); err != nil {
		t.Fatalf("second read errored: %v", err)
	}
	if out[0] != [2]float32{5, 6} || out[1] != [2]float32{} {
		t.Fatalf("second read should pad the partial buffer with silence, got %v", out)
	}
	if err := source(out); err == nil {
		t.Fatalf("reading past the end should return io.EOF")
	}
}
