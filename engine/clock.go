package engine

import (
	"math"
	"sync/atomic"

	"github.com/tahti-audio/tahti"
)

type (
	// clock is the single source of truth for the playhead. Exactly one
	// goroutine mutates it: the audio callback, which drains queued intents
	// at the start of every buffer and then advances the tick by the buffer's
	// duration while playing. Everyone else sees the clock only through the
	// atomically published snapshot.
	clock struct {
		sampleRate int
		ppq        int

		state tahti.TransportState
		tick  tahti.Tick
		frac  float64 // sub-tick phase of the playhead, in [0, 1)
		frame int64   // samples rendered since the player was created

		bpm            float64
		ticksPerSample float64

		loop            tahti.LoopRange
		maxTick         tahti.Tick // 0 = no upper bound for seeks
		stopToLoopStart bool

		// The publish ring: the callback rotates through the slots so that
		// publishing never allocates. A slot is rewritten only after the
		// other 63 have been published in between, which at one publish per
		// buffer is several seconds; a reader would have to stall mid-copy
		// for that long to see a torn snapshot.
		slots     [snapshotSlots]snapshot
		slotIdx   int
		published atomic.Pointer[snapshot]

		counters *Counters
	}

	// snapshot is the atomically published clock state. Readers must copy
	// the struct out of a single Load; holding the pointer across buffers
	// forfeits the consistency guarantee.
	snapshot struct {
		Tick           tahti.Tick
		State          tahti.TransportState
		TicksPerSample float64
		Loop           tahti.LoopRange
		Frame          int64
	}

	// window is a half-open tick range [From, To) covered by part of one
	// buffer. Offset is the sample position of From within the buffer and
	// Frac the sub-tick phase there, so that event offsets can be computed
	// exactly. A buffer normally yields one window; crossing the loop end
	// splits it.
	window struct {
		From   tahti.Tick
		To     tahti.Tick
		Offset int
		Frac   float64
	}
)

const snapshotSlots = 64

func (c *clock) init(cfg tahti.Config, counters *Counters) {
	c.sampleRate = cfg.SampleRate
	c.ppq = cfg.PPQ
	c.bpm = cfg.BPM
	c.ticksPerSample = cfg.TicksPerSample()
	c.loop = cfg.Loop
	c.stopToLoopStart = cfg.StopReturnsToLoopStart
	c.counters = counters
	c.publish()
}

// apply executes one intent. It returns true when the playhead jumped in a
// way that invalidates scheduled state: the caller must then flush pending
// note-offs and release sounding voices so no stale triggers or releases are
// emitted. Pause deliberately does not flush; held voices keep ringing and
// tick-stamped note-offs stay valid, so resuming continues seamlessly.
func (c *clock) apply(in Intent) (flush bool) {
	switch in.Kind {
	case IntentPlay:
		c.state = tahti.Playing
	case IntentPlayFrom:
		c.seekTo(in.Tick)
		c.state = tahti.Playing
		flush = true
	case IntentPause:
		if c.state == tahti.Playing {
			c.state = tahti.Paused
		}
	case IntentStop:
		if c.state != tahti.Stopped {
			c.state = tahti.Stopped
			c.tick = 0
			if c.stopToLoopStart && c.loop.Enabled {
				c.tick = c.loop.Start
			}
			c.frac = 0
			flush = true
		}
	case IntentSeek:
		c.seekTo(in.Tick)
		flush = true
	case IntentTempo:
		c.setTempo(in.BPM)
	case IntentLoop:
		c.setLoop(in.Loop)
	}
	return flush
}

func (c *clock) seekTo(t tahti.Tick) {
	target := t
	if target < 0 {
		target = 0
	}
	if c.maxTick > 0 && target > c.maxTick {
		target = c.maxTick
	}
	if target != t {
		c.counters.ClampedSeeks.Add(1)
	}
	c.tick = target
	c.frac = 0
}

func (c *clock) setTempo(bpm float64) {
	bpm = math.Min(math.Max(bpm, tahti.MinBPM), tahti.MaxBPM)
	c.bpm = bpm
	c.ticksPerSample = tahti.TicksPerSample(bpm, c.ppq, c.sampleRate)
}

func (c *clock) setLoop(l tahti.LoopRange) {
	if l.Validate() != nil {
		return // malformed ranges are already rejected at submit
	}
	c.loop = l
	if l.Enabled && l.Len() > 0 && !l.Contains(c.tick) {
		// the playhead is outside the new range: pull it in. Clamp can land
		// on the exclusive end bound, which Wrap folds back to the start.
		c.tick = l.Wrap(l.Clamp(c.tick))
		c.frac = 0
	}
}

// advance moves the playhead forward by the buffer's sample count, splitting
// the walk at loop wraps, and appends the covered sub-windows to wins. Only
// called while Playing. The loop end is exclusive: a wrap landing exactly on
// it continues from the loop start. If a degenerate loop wraps more times
// than wins has room for, the excess windows are skipped (their events do
// not trigger) but the playhead still ends up in the right place.
func (c *clock) advance(samples int, wins []window) []window {
	remaining := samples
	offset := 0
	for remaining > 0 {
		total := float64(remaining)*c.ticksPerSample + c.frac
		delta := tahti.Tick(total)
		end := c.tick + delta
		wraps := c.loop.Enabled && c.loop.Len() > 0 && c.tick < c.loop.End && end >= c.loop.End
		if !wraps {
			if len(wins) < cap(wins) {
				wins = append(wins, window{From: c.tick, To: end, Offset: offset, Frac: c.frac})
			} else {
				c.counters.SkippedWindows.Add(1)
			}
			c.tick = end
			c.frac = total - float64(delta)
			break
		}
		ticksToEnd := c.loop.End - c.tick
		n := int(math.Ceil((float64(ticksToEnd) - c.frac) / c.ticksPerSample))
		if n < 1 {
			n = 1
		}
		if n > remaining {
			n = remaining
		}
		if len(wins) < cap(wins) {
			wins = append(wins, window{From: c.tick, To: c.loop.End, Offset: offset, Frac: c.frac})
		} else {
			c.counters.SkippedWindows.Add(1)
		}
		// the n samples may overshoot the loop end by a sub-tick amount, or
		// by whole ticks when one sample spans several ticks; whole ticks
		// carry over past the wrap
		c.frac += float64(n)*c.ticksPerSample - float64(ticksToEnd)
		if c.frac < 0 {
			c.frac = 0
		}
		carry := tahti.Tick(c.frac)
		c.frac -= float64(carry)
		c.tick = c.loop.Wrap(c.loop.End + carry)
		c.counters.LoopWraps.Add(1)
		offset += n
		remaining -= n
	}
	return wins
}

// advanceFrame counts rendered samples. Unlike the tick, the frame counter
// also runs while paused or stopped; voice ages and live input offsets are
// measured against it.
func (c *clock) advanceFrame(samples int) {
	c.frame += int64(samples)
}

func (c *clock) publish() {
	s := &c.slots[c.slotIdx]
	c.slotIdx = (c.slotIdx + 1) % snapshotSlots
	*s = snapshot{
		Tick:           c.tick,
		State:          c.state,
		TicksPerSample: c.ticksPerSample,
		Loop:           c.loop,
		Frame:          c.frame,
	}
	c.published.Store(s)
}

func (c *clock) load() snapshot {
	return *c.published.Load()
}
