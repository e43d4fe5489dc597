package engine

import (
	"sort"

	"github.com/tahti-audio/tahti"
)

type (
	// scheduler turns the clock's windows into sample-accurate triggers and
	// releases. It pulls events from the current EventSource, hands them to
	// the VoiceManager with their offset inside the buffer, and keeps the
	// releases of already triggered notes in a small sorted ledger until
	// their tick comes up. All scratch space is allocated up front.
	scheduler struct {
		src tahti.EventSource

		events []tahti.NoteEvent // scratch for cache misses
		ahead  []tahti.NoteEvent // prefetched lookahead, sorted by StartTick

		aheadFrom  tahti.Tick
		aheadTo    tahti.Tick
		aheadValid bool

		pending   []noteOff // sorted by tick, capacity fixed at init
		lookahead tahti.Tick
		counters  *Counters
	}

	// noteOff is a scheduled release. The generation is the voice's at
	// trigger time; if the slot was stolen meanwhile the release is stale
	// and must not fire.
	noteOff struct {
		tick  tahti.Tick
		voice int
		gen   uint32
	}
)

const (
	eventScratchCap = 256
	lookaheadCap    = 1024
)

func (s *scheduler) init(cfg tahti.Config, counters *Counters) {
	s.events = make([]tahti.NoteEvent, 0, eventScratchCap)
	s.ahead = make([]tahti.NoteEvent, 0, lookaheadCap)
	s.pending = make([]noteOff, 0, 4*cfg.Polyphony)
	s.lookahead = cfg.LookaheadTicks()
	s.counters = counters
}

func (s *scheduler) setSource(src tahti.EventSource) {
	s.src = src
	s.aheadValid = false
}

// invalidate drops the lookahead cache and the pending note-off ledger.
// Seeks, stops and source swaps go through here; releasing the voices
// themselves is the VoiceManager's business.
func (s *scheduler) invalidate() {
	s.aheadValid = false
	s.pending = s.pending[:0]
}

// schedule processes one window: first the pending releases that come due,
// then the note-ons starting inside [win.From, win.To). Releases go first so
// a voice whose note ends on the same tick another note begins is free for
// reuse before the allocator runs.
func (s *scheduler) schedule(win window, tps float64, bufLen int, vm *VoiceManager, now int64) {
	s.fireDue(win, tps, bufLen, vm, now)
	for _, e := range s.eventsIn(win.From, win.To) {
		offset := offsetFor(e.StartTick, win, tps, bufLen)
		v := vm.Allocate(e.Instrument, e.Pitch, e.Velocity, offset, now)
		if v < 0 {
			continue
		}
		s.pushOff(noteOff{tick: e.End(), voice: v, gen: vm.voices[v].gen}, vm, offset, now)
	}
}

// fireDue releases every pending note-off with a tick before the window
// end. Entries already behind the window start (a remap or an eviction can
// leave those) fire at the window's first sample instead of being dropped.
func (s *scheduler) fireDue(win window, tps float64, bufLen int, vm *VoiceManager, now int64) {
	n := 0
	for _, off := range s.pending {
		if off.tick >= win.To {
			break
		}
		vm.ReleaseSlot(off.voice, off.gen, offsetFor(off.tick, win, tps, bufLen), now)
		n++
	}
	if n > 0 {
		s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	}
}

// eventsIn returns the events starting in [from, to), served from the
// lookahead cache when it covers the range and straight from the source
// when it does not. The returned slice is only valid until the next call.
func (s *scheduler) eventsIn(from, to tahti.Tick) []tahti.NoteEvent {
	if s.src == nil {
		return nil
	}
	if s.aheadValid && s.aheadFrom <= from && to <= s.aheadTo {
		lo := sort.Search(len(s.ahead), func(i int) bool { return s.ahead[i].StartTick >= from })
		hi := lo
		for hi < len(s.ahead) && s.ahead[hi].StartTick < to {
			hi++
		}
		return s.ahead[lo:hi]
	}
	s.events = s.src.EventsInRange(from, to, s.events[:0])
	return s.events
}

// prefetch refills the lookahead cache starting at the given tick. The
// player calls it after rendering, and skips it after an overrun, so the
// source query happens in whatever headroom the buffer left over.
func (s *scheduler) prefetch(tick tahti.Tick) {
	if s.src == nil {
		s.aheadValid = false
		return
	}
	s.ahead = s.src.EventsInRange(tick, tick+s.lookahead, s.ahead[:0])
	s.aheadFrom, s.aheadTo = tick, tick+s.lookahead
	s.aheadValid = true
}

// pushOff inserts a scheduled release keeping the ledger sorted by tick.
// When the ledger is full the earliest pending release fires immediately
// instead of being lost; truncating the oldest note slightly beats leaving
// a voice stuck on forever.
func (s *scheduler) pushOff(off noteOff, vm *VoiceManager, offset int, now int64) {
	if len(s.pending) == cap(s.pending) {
		ev := s.pending[0]
		s.pending = s.pending[:copy(s.pending, s.pending[1:])]
		vm.ReleaseSlot(ev.voice, ev.gen, offset, now)
		s.counters.NoteOffEvictions.Add(1)
	}
	i := len(s.pending)
	for i > 0 && s.pending[i-1].tick > off.tick {
		i--
	}
	s.pending = append(s.pending, noteOff{})
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = off
}

// remapPending rewrites pending releases at or past the loop end so they
// fire at the equivalent position after the wrap. Without this a note held
// across the loop seam would never see its release again.
func (s *scheduler) remapPending(end, start tahti.Tick) {
	for i := range s.pending {
		if s.pending[i].tick >= end {
			s.pending[i].tick = start + (s.pending[i].tick - end)
		}
	}
	for i := 1; i < len(s.pending); i++ {
		for j := i; j > 0 && s.pending[j-1].tick > s.pending[j].tick; j-- {
			s.pending[j-1], s.pending[j] = s.pending[j], s.pending[j-1]
		}
	}
}

// offsetFor converts an event tick into a sample offset inside the current
// buffer, accounting for the fractional tick position at the window start.
func offsetFor(t tahti.Tick, win window, tps float64, bufLen int) int {
	if t <= win.From {
		return win.Offset
	}
	offset := win.Offset + int((float64(t-win.From)-win.Frac)/tps)
	if offset < win.Offset {
		offset = win.Offset
	}
	if offset >= bufLen {
		offset = bufLen - 1
	}
	return offset
}
