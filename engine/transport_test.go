package engine_test

import (
	"testing"

	"github.com/tahti-audio/tahti"
	"github.com/tahti-audio/tahti/engine"
)

func TestIntentsApplyInQueueOrder(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), &recordInstrument{})
	tr := p.Transport()
	// pause only applies from the playing state, so if the batch applied
	// out of order the player would end up playing instead of paused
	tr.Play()
	tr.Pause()
	processBlocks(p, 1, 960)
	if got := p.PositionReader().State(); got != tahti.Paused {
		t.Errorf("state after play+pause batch is %v, expected Paused", got)
	}
}

func TestSeekWhileStoppedArmsPosition(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), &recordInstrument{})
	reader := p.PositionReader()
	tr := p.Transport()
	tr.Seek(24)
	processBlocks(p, 1, 960)
	if tick := reader.Tick(); tick != 24 {
		t.Fatalf("seek while stopped put the playhead at %d, expected 24", tick)
	}
	if got := reader.State(); got != tahti.Stopped {
		t.Fatalf("seek changed transport state to %v", got)
	}
	tr.Play()
	processBlocks(p, 1, 960)
	if tick := reader.Tick(); tick != 26 {
		t.Errorf("play after seek continued from tick %d, expected 26", tick)
	}
}

func TestPauseWhileStoppedIsNoOp(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), &recordInstrument{})
	tr := p.Transport()
	tr.Pause()
	processBlocks(p, 1, 960)
	if got := p.PositionReader().State(); got != tahti.Stopped {
		t.Errorf("pausing a stopped transport changed state to %v", got)
	}
}

func TestFullQueueDropsTempoKeepsStop(t *testing.T) {
	broker := engine.NewBrokerWithQueueSize(4)
	p, err := engine.NewPlayer(broker, testConfig(), &recordInstrument{})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	tr := p.Transport()
	tr.Play()
	processBlocks(p, 1, 960)
	for i := 0; i < 4; i++ {
		if !tr.SetTempo(150) {
			t.Fatalf("tempo change %d rejected with room in the queue", i)
		}
	}
	if tr.SetTempo(160) {
		t.Error("tempo change accepted against a full queue")
	}
	if !tr.Stop() {
		t.Error("stop rejected; transport commands should push through a full queue")
	}
	processBlocks(p, 1, 960)
	reader := p.PositionReader()
	if got := reader.State(); got != tahti.Stopped {
		t.Errorf("state is %v, expected Stopped", got)
	}
	// the queued tempo changes were shed to make room; the tempo is intact
	if got, want := reader.TicksPerSample(), tahti.TicksPerSample(125, 48, 48000); got != want {
		t.Errorf("TicksPerSample is %g, expected the original %g", got, want)
	}
	if n := p.Counters().QueueOverflows.Load(); n != 2 {
		t.Errorf("QueueOverflows is %d, expected 2", n)
	}
}

func TestSetLoopValidation(t *testing.T) {
	p, _ := newTestPlayer(t, testConfig(), &recordInstrument{})
	tr := p.Transport()
	if tr.SetLoop(tahti.LoopRange{Start: 10, End: 5, Enabled: true}) {
		t.Error("inverted loop range accepted")
	}
	if n := p.Counters().InvalidEvents.Load(); n != 1 {
		t.Errorf("InvalidEvents is %d, expected 1", n)
	}
	processBlocks(p, 1, 960)
	if p.PositionReader().Loop().Enabled {
		t.Error("rejected loop still reached the player")
	}
	// a disabled range is not validated; it just switches looping off
	if !tr.SetLoop(tahti.LoopRange{Start: 10, End: 5}) {
		t.Error("disabled loop range rejected")
	}
	if !tr.SetLoop(tahti.LoopRange{Start: 0, End: 24, Enabled: true}) {
		t.Error("valid loop range rejected")
	}
	processBlocks(p, 1, 960)
	if got := p.PositionReader().Loop(); got != (tahti.LoopRange{Start: 0, End: 24, Enabled: true}) {
		t.Errorf("loop is %+v, expected 0..24 enabled", got)
	}
}

func TestClearLoop(t *testing.T) {
	cfg := testConfig()
	cfg.Loop = tahti.LoopRange{Start: 0, End: 24, Enabled: true}
	p, _ := newTestPlayer(t, cfg, &recordInstrument{})
	tr := p.Transport()
	tr.PlayFrom(4)
	processBlocks(p, 1, 960)
	tr.ClearLoop()
	processBlocks(p, 1, 960)
	reader := p.PositionReader()
	if reader.Loop().Enabled {
		t.Error("loop still enabled after ClearLoop")
	}
	if tick := reader.Tick(); tick != 8 {
		t.Errorf("clearing the loop moved the playhead to %d, expected 8", tick)
	}
}
