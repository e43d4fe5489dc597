package engine_test

import (
	"testing"
	"time"

	"github.com/tahti-audio/tahti/engine"
)

func TestTrySendTryReceive(t *testing.T) {
	c := make(chan int, 1)
	if !engine.TrySend(c, 1) {
		t.Fatalf("send to an empty channel should succeed")
	}
	if engine.TrySend(c, 2) {
		t.Fatalf("send to a full channel should fail, not block")
	}
	if v, ok := engine.TryReceive(c); !ok || v != 1 {
		t.Fatalf("receive got %v, %v, expected 1, true", v, ok)
	}
	if _, ok := engine.TryReceive(c); ok {
		t.Fatalf("receive from an empty channel should fail, not block")
	}
}

func TestTimeoutReceive(t *testing.T) {
	c := make(chan int, 1)
	start := time.Now()
	if _, ok := engine.TimeoutReceive(c, 10*time.Millisecond); ok {
		t.Fatalf("receive from an empty channel should time out")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("timed out too early")
	}
	c <- 42
	if v, ok := engine.TimeoutReceive(c, time.Second); !ok || v != 42 {
		t.Fatalf("receive got %v, %v, expected 42, true", v, ok)
	}
}

func TestAudioBufferPool(t *testing.T) {
	broker := engine.NewBroker()
	buf := broker.GetAudioBuffer()
	if len(*buf) != 0 {
		t.Fatalf("pool handed out a non-empty buffer")
	}
	*buf = append(*buf, [2]float32{1, 2})
	broker.PutAudioBuffer(buf)
	again := broker.GetAudioBuffer()
	if len(*again) != 0 {
		t.Fatalf("pool handed out a non-empty buffer after recycling")
	}
}

func TestIntentCritical(t *testing.T) {
	critical := []engine.IntentKind{
		engine.IntentPlay, engine.IntentPlayFrom, engine.IntentPause,
		engine.IntentStop, engine.IntentSeek, engine.IntentSource,
	}
	for _, k := range critical {
		if !k.Critical() {
			t.Errorf("intent kind %v should be critical", k)
		}
	}
	for _, k := range []engine.IntentKind{engine.IntentTempo, engine.IntentLoop} {
		if k.Critical() {
			t.Errorf("intent kind %v should not be critical", k)
		}
	}
}
