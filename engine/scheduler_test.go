package engine_test

import (
	"testing"

	"github.com/tahti-audio/tahti"
	"github.com/tahti-audio/tahti/engine"
)

func TestPlayFromSkipsEarlierNotes(t *testing.T) {
	inst := &recordInstrument{}
	p, _ := newTestPlayer(t, testConfig(), inst)
	tr := p.Transport()
	tr.SetSource(sourceWith(
		tahti.NoteEvent{Pitch: 60, Velocity: 100, StartTick: 0, Duration: 2},
		tahti.NoteEvent{Pitch: 64, Velocity: 100, StartTick: 4, Duration: 2},
		tahti.NoteEvent{Pitch: 67, Velocity: 100, StartTick: 8, Duration: 2},
	))
	tr.PlayFrom(8)
	processBlocks(p, 2, 960)
	// only the note under the new position plays; the skipped ones stay
	// silent instead of piling up as late triggers
	want := []voiceCall{
		{on: true, voice: 0, pitch: 67, offset: 0, block: 0},
		{on: false, voice: 0, offset: 0, block: 1},
	}
	if err := expectCalls(inst.calls, want); err != nil {
		t.Fatal(err)
	}
}

func TestLoopShorterThanBuffer(t *testing.T) {
	inst := &recordInstrument{}
	p, _ := newTestPlayer(t, testConfig(), inst)
	tr := p.Transport()
	tr.SetSource(sourceWith(tahti.NoteEvent{Pitch: 60, Velocity: 100, StartTick: 0, Duration: 1}))
	tr.SetLoop(tahti.LoopRange{Start: 0, End: 1, Enabled: true})
	tr.Play()
	// a one tick loop wraps twice inside every two tick buffer, so the one
	// note retriggers once per wrap and every retrigger gets its release
	processBlocks(p, 3, 960)
	triggers, releases := 0, 0
	for _, c := range inst.calls {
		if c.on {
			triggers++
		} else {
			releases++
		}
	}
	if triggers != 6 || releases != 5 {
		t.Errorf("got %d triggers and %d releases over 3 blocks, expected 6 and 5", triggers, releases)
	}
	c := p.Counters().Snapshot()
	if c.LoopWraps != 6 {
		t.Errorf("LoopWraps is %d, expected 6", c.LoopWraps)
	}
	if c.SkippedWindows != 0 {
		t.Errorf("SkippedWindows is %d, expected 0", c.SkippedWindows)
	}
}

func TestDegenerateLoopSkipsWindows(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), &recordInstrument{})
	tr := p.Transport()
	tr.SetSource(sourceWith(tahti.NoteEvent{Pitch: 60, Velocity: 100, StartTick: 0, Duration: 1}))
	tr.SetLoop(tahti.LoopRange{Start: 0, End: 1, Enabled: true})
	tr.Play()
	// one 8192 sample buffer crosses the 480 sample loop 17 times; the
	// window list holds 8, the excess is counted instead of scheduled
	buf := make(tahti.AudioBuffer, 8192)
	p.Process(buf, engine.NullPlayerProcessContext{})
	c := p.Counters().Snapshot()
	if c.LoopWraps != 17 {
		t.Errorf("LoopWraps is %d, expected 17", c.LoopWraps)
	}
	if c.SkippedWindows != 10 {
		t.Errorf("SkippedWindows is %d, expected 10", c.SkippedWindows)
	}
	if tick := p.PositionReader().Tick(); tick != 0 {
		t.Errorf("playhead ended on tick %d, expected to stay inside the loop", tick)
	}
}

func TestNoteOffLedgerEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Polyphony = 1
	inst := &recordInstrument{}
	p, _ := newTestPlayer(t, cfg, inst)
	tr := p.Transport()
	// five held notes on one voice: four steals, and the fifth scheduled
	// release overflows the ledger of four, firing the oldest early
	tr.SetSource(sourceWith(
		tahti.NoteEvent{Pitch: 60, Velocity: 100, StartTick: 0, Duration: 100},
		tahti.NoteEvent{Pitch: 61, Velocity: 100, StartTick: 0, Duration: 101},
		tahti.NoteEvent{Pitch: 62, Velocity: 100, StartTick: 0, Duration: 102},
		tahti.NoteEvent{Pitch: 63, Velocity: 100, StartTick: 0, Duration: 103},
		tahti.NoteEvent{Pitch: 64, Velocity: 100, StartTick: 0, Duration: 104},
	))
	tr.Play()
	processBlocks(p, 1, 960)
	triggers, releases := 0, 0
	for _, call := range inst.calls {
		if call.on {
			triggers++
		} else {
			releases++
		}
	}
	if triggers != 5 || releases != 4 {
		t.Errorf("got %d triggers and %d releases, expected 5 and 4", triggers, releases)
	}
	c := p.Counters().Snapshot()
	if c.VoiceSteals != 4 {
		t.Errorf("VoiceSteals is %d, expected 4", c.VoiceSteals)
	}
	if c.NoteOffEvictions != 1 {
		t.Errorf("NoteOffEvictions is %d, expected 1", c.NoteOffEvictions)
	}
}

func TestLookaheadAvoidsSourceQueries(t *testing.T) {
	src := &countingSource{src: sourceWith(tahti.NoteEvent{Pitch: 60, Velocity: 100, StartTick: 2, Duration: 1})}
	inst := &recordInstrument{}
	p, _ := newTestPlayer(t, testConfig(), inst)
	tr := p.Transport()
	tr.SetSource(src)
	tr.Play()
	processBlocks(p, 4, 480)
	if len(inst.calls) == 0 || !inst.calls[0].on || inst.calls[0].block != 2 {
		t.Fatalf("cached note did not trigger in block 2: %+v", inst.calls)
	}
	// the first block queries the source directly, after that each block
	// refills the lookahead once and scheduling itself runs off the cache;
	// an overrun legitimately skips a refill, so only count without one
	if p.Counters().Overruns.Load() == 0 && src.calls != 5 {
		t.Errorf("source queried %d times over 4 blocks, expected 5", src.calls)
	}
}

// countingSource counts how often the scheduler reaches for the source.
type countingSource struct {
	src   tahti.EventSource
	calls int
}

func (c *countingSource) EventsInRange(from, to tahti.Tick, dst []tahti.NoteEvent) []tahti.NoteEvent {
	c.calls++
	return c.src.EventsInRange(from, to, dst)
}

func (c *countingSource) Length() tahti.Tick { return c.src.Length() }
