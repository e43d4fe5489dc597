package engine

import (
	"github.com/tahti-audio/tahti"
)

// Transport is the control-side handle for driving playback. Every method
// queues an intent for the player goroutine and returns immediately; the
// bool reports whether the intent made it into the queue. Intents apply in
// order at the next buffer boundary, so the last queued tempo or loop
// change is the one that sticks.
type Transport struct {
	broker   *Broker
	counters *Counters
	scratch  []Intent
}

func NewTransport(broker *Broker, counters *Counters) *Transport {
	return &Transport{
		broker:   broker,
		counters: counters,
		scratch:  make([]Intent, 0, cap(broker.ToPlayer)),
	}
}

// Play starts playback from the current position. From pause this resumes
// exactly where the playhead sat, mid-tick position included; from stop it
// starts wherever the last stop left the playhead.
func (t *Transport) Play() bool {
	return t.submit(Intent{Kind: IntentPlay})
}

// PlayFrom starts playback from the given tick regardless of prior state.
func (t *Transport) PlayFrom(tick tahti.Tick) bool {
	return t.submit(Intent{Kind: IntentPlayFrom, Tick: tick})
}

// Pause freezes the playhead in place. Sounding voices keep ringing and
// scheduled releases stay queued, so Play picks up seamlessly. Pausing
// while not playing does nothing.
func (t *Transport) Pause() bool {
	return t.submit(Intent{Kind: IntentPause})
}

// Resume is Play under its other name; it exists so call sites pairing it
// with Pause read naturally.
func (t *Transport) Resume() bool {
	return t.submit(Intent{Kind: IntentPlay})
}

// Stop halts playback and returns the playhead to the configured home
// position, either zero or the loop start.
func (t *Transport) Stop() bool {
	return t.submit(Intent{Kind: IntentStop})
}

// Seek moves the playhead. It works in every transport state and does not
// change the state: seeking while stopped arms the position the next Play
// will start from. The tick is clamped to the source's range.
func (t *Transport) Seek(tick tahti.Tick) bool {
	return t.submit(Intent{Kind: IntentSeek, Tick: tick})
}

// SetTempo requests a tempo change. It applies at the next buffer boundary
// as a step; positions already played are not reinterpreted. The value is
// clamped to the supported BPM range.
func (t *Transport) SetTempo(bpm float64) bool {
	return t.submit(Intent{Kind: IntentTempo, BPM: bpm})
}

// SetLoop replaces the loop region. An invalid range is rejected here and
// never reaches the player. A playhead outside the new region gets pulled
// to the loop start when the change applies.
func (t *Transport) SetLoop(l tahti.LoopRange) bool {
	if l.Enabled && l.Validate() != nil {
		t.counters.InvalidEvents.Add(1)
		return false
	}
	return t.submit(Intent{Kind: IntentLoop, Loop: l})
}

// ClearLoop disables looping without touching the playhead.
func (t *Transport) ClearLoop() bool {
	return t.submit(Intent{Kind: IntentLoop})
}

// SetSource swaps the event source the player schedules from. The swap
// happens at the next buffer boundary; notes already sounding ring out, but
// from that point on every trigger comes from the new source. A nil source
// silences scheduling without stopping the transport.
func (t *Transport) SetSource(src tahti.EventSource) bool {
	return t.submit(Intent{Kind: IntentSource, Source: src})
}

// submit tries to queue the intent without blocking. On a full queue,
// non-critical intents (tempo, loop) are simply dropped; transport commands
// make room for themselves by draining the queue once over and dropping the
// stale non-critical entries, keeping queued commands in their order.
func (t *Transport) submit(in Intent) bool {
	if TrySend(t.broker.ToPlayer, in) {
		return true
	}
	t.counters.QueueOverflows.Add(1)
	if !in.Kind.Critical() {
		return false
	}
	kept := t.scratch[:0]
	for i, n := 0, cap(t.broker.ToPlayer); i < n; i++ {
		old, ok := TryReceive(t.broker.ToPlayer)
		if !ok {
			break
		}
		if old.Kind.Critical() {
			kept = append(kept, old)
		}
	}
	kept = append(kept, in)
	ok := true
	for _, q := range kept {
		ok = TrySend(t.broker.ToPlayer, q) && ok
	}
	return ok
}
