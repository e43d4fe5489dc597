package engine_test

import (
	"math"
	"testing"
	"time"

	"github.com/tahti-audio/tahti/engine"
)

func TestMeterLevels(t *testing.T) {
	broker := engine.NewBroker()
	m := engine.NewMeter(broker, 48000)
	go m.Run()
	defer m.Close()
	// a chunk of constant 0.5 has both RMS and peak at half of full scale
	lv := meterChunk(t, broker, 0.5)
	expectDecibel(t, "rms", lv.RMS, -6.02)
	expectDecibel(t, "peak", lv.Peak, -6.02)
	// a quieter chunk drops the RMS immediately, but the peak window still
	// holds the louder chunk for a few readings
	lv = meterChunk(t, broker, 0.1)
	expectDecibel(t, "rms", lv.RMS, -20)
	expectDecibel(t, "peak", lv.Peak, -6.02)
}

func TestMeterReset(t *testing.T) {
	broker := engine.NewBroker()
	m := engine.NewMeter(broker, 48000)
	go m.Run()
	defer m.Close()
	meterChunk(t, broker, 0.5)
	engine.TrySend(broker.ToMeter, engine.MsgToMeter{Reset: true})
	lv := meterChunk(t, broker, 0.1)
	expectDecibel(t, "rms", lv.RMS, -20)
	expectDecibel(t, "peak", lv.Peak, -20)
}

func TestMeterCarriesPartialChunks(t *testing.T) {
	broker := engine.NewBroker()
	m := engine.NewMeter(broker, 48000)
	go m.Run()
	defer m.Close()
	// half a chunk produces no reading; the second half completes it
	sendFrames(t, broker, 0.5, 2400)
	if msg, ok := engine.TimeoutReceive(broker.ToModel, 100*time.Millisecond); ok && msg.HasLevels {
		t.Fatal("got a level reading from half a chunk")
	}
	sendFrames(t, broker, 0.5, 2400)
	msg, ok := engine.TimeoutReceive(broker.ToModel, time.Second)
	if !ok || !msg.HasLevels {
		t.Fatal("no level reading after the chunk completed")
	}
	expectDecibel(t, "rms", msg.Levels.RMS, -6.02)
}

func TestMeterClose(t *testing.T) {
	broker := engine.NewBroker()
	m := engine.NewMeter(broker, 48000)
	go m.Run()
	m.Close()
	select {
	case <-broker.FinishedMeter:
	case <-time.After(time.Second):
		t.Fatal("meter did not finish within a second")
	}
}

func sendFrames(t *testing.T, broker *engine.Broker, level float32, n int) {
	t.Helper()
	buf := broker.GetAudioBuffer()
	for i := 0; i < n; i++ {
		*buf = append(*buf, [2]float32{level, level})
	}
	if !engine.TrySend(broker.ToMeter, engine.MsgToMeter{Data: buf}) {
		t.Fatal("meter queue full")
	}
}

// meterChunk ships one full 100 ms chunk of constant samples to the meter
// and waits for the resulting reading.
func meterChunk(t *testing.T, broker *engine.Broker, level float32) engine.Levels {
	t.Helper()
	sendFrames(t, broker, level, 4800)
	for {
		msg, ok := engine.TimeoutReceive(broker.ToModel, time.Second)
		if !ok {
			t.Fatal("no level reading within a second")
		}
		if msg.HasLevels {
			return msg.Levels
		}
	}
}

func expectDecibel(t *testing.T, what string, got [2]engine.Decibel, want float64) {
	t.Helper()
	for chn, g := range got {
		if math.Abs(float64(g)-want) > 0.05 {
			t.Errorf("%s channel %d is %.2f dB, expected %.2f", what, chn, float64(g), want)
		}
	}
}
