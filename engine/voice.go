package engine

import (
	"github.com/tahti-audio/tahti"
)

type (
	// VoiceManager owns the fixed pool of voice slots shared by all
	// instruments. Slot indices are the voice ids handed to instruments, so
	// the arena never moves and allocation state lives in one flat array the
	// callback can scan deterministically. No method allocates; everything
	// here runs on the real-time path.
	VoiceManager struct {
		voices      []voice
		instruments []tahti.Instrument
		disabled    []bool // instruments taken out of allocation after a Render failure
		guard       int64  // minimum age in samples before a voice may be stolen
		counters    *Counters
	}

	voice struct {
		state       voiceState
		instrument  int
		noteID      int
		gen         uint32 // bumped on every trigger; stale note-offs compare against it
		allocatedAt int64
		releasedAt  int64
	}

	voiceState uint8
)

const (
	voiceFree voiceState = iota
	voiceAttack
	voiceSustain
	voiceRelease
)

func (vm *VoiceManager) init(cfg tahti.Config, instruments []tahti.Instrument, counters *Counters) {
	vm.voices = make([]voice, cfg.Polyphony)
	vm.instruments = instruments
	vm.disabled = make([]bool, len(instruments))
	vm.guard = cfg.StealGuardSamples()
	vm.counters = counters
}

// Allocate finds a slot for a new note, stealing one if the pool is
// exhausted, and triggers the instrument on it. A stolen slot's previous
// instrument gets a Release at the same offset before the new Trigger, so
// the handoff is hard but not a raw cut. Returns the voice id, or -1 when
// the note was dropped: either the instrument index is bad, or every voice
// was younger than the steal guard and stealing any of them would chatter.
func (vm *VoiceManager) Allocate(instrument int, pitch, velocity byte, offset int, now int64) int {
	if instrument < 0 || instrument >= len(vm.instruments) {
		vm.counters.InvalidEvents.Add(1)
		return -1
	}
	if vm.disabled[instrument] {
		return -1
	}
	i := vm.findSlot(now)
	if i < 0 {
		vm.counters.VoiceDrops.Add(1)
		return -1
	}
	v := &vm.voices[i]
	if v.state != voiceFree {
		vm.instruments[v.instrument].Release(i, offset)
		vm.counters.VoiceSteals.Add(1)
	}
	*v = voice{
		state:       voiceAttack,
		instrument:  instrument,
		noteID:      noteID(instrument, pitch),
		gen:         v.gen + 1,
		allocatedAt: now,
	}
	vm.instruments[instrument].Trigger(i, pitch, velocity, offset)
	return i
}

// findSlot returns a free slot if there is one, otherwise the best steal
// candidate: the oldest released voice, or failing that the oldest sounding
// voice. Voices younger than the guard are never candidates; -1 means
// everything was that young.
func (vm *VoiceManager) findSlot(now int64) int {
	released, sounding := -1, -1
	var releasedAge, soundingAge int64 = -1, -1
	for i := range vm.voices {
		v := &vm.voices[i]
		if v.state == voiceFree {
			return i
		}
		age := now - v.allocatedAt
		if age < vm.guard {
			continue
		}
		if v.state == voiceRelease {
			if age > releasedAge {
				released, releasedAge = i, age
			}
		} else if age > soundingAge {
			sounding, soundingAge = i, age
		}
	}
	if released >= 0 {
		return released
	}
	return sounding
}

// ReleaseNote releases the sounding voice playing the given note, if any.
// This is the live-input path, where the note-off arrives by pitch rather
// than by voice id.
func (vm *VoiceManager) ReleaseNote(instrument int, pitch byte, offset int, now int64) {
	id := noteID(instrument, pitch)
	for i := range vm.voices {
		v := &vm.voices[i]
		if (v.state == voiceAttack || v.state == voiceSustain) && v.noteID == id {
			vm.release(i, offset, now)
			return
		}
	}
}

// ReleaseSlot releases a voice by id, but only if it is still playing the
// note the caller scheduled the release for: a stolen or already released
// slot makes the note-off stale, and firing it would cut the wrong note.
func (vm *VoiceManager) ReleaseSlot(i int, gen uint32, offset int, now int64) {
	if i < 0 || i >= len(vm.voices) {
		return
	}
	v := &vm.voices[i]
	if v.gen != gen || (v.state != voiceAttack && v.state != voiceSustain) {
		return
	}
	vm.release(i, offset, now)
}

// ReleaseAll releases every sounding voice. Stop and seek use it so nothing
// keeps playing a note from a position the playhead has left; the tails
// still ring out and the slots return to the pool through normal polling.
func (vm *VoiceManager) ReleaseAll(offset int, now int64) {
	for i := range vm.voices {
		if s := vm.voices[i].state; s == voiceAttack || s == voiceSustain {
			vm.release(i, offset, now)
		}
	}
}

func (vm *VoiceManager) release(i, offset int, now int64) {
	v := &vm.voices[i]
	v.state = voiceRelease
	v.releasedAt = now
	vm.instruments[v.instrument].Release(i, offset)
}

// Poll advances voice lifecycles once per buffer: freshly triggered voices
// are promoted out of their attack guard, and released voices whose tails
// have gone quiet return to the pool. Polling per buffer instead of using
// timer callbacks keeps the tail check on the real-time path's own clock.
func (vm *VoiceManager) Poll(now int64) {
	for i := range vm.voices {
		v := &vm.voices[i]
		switch v.state {
		case voiceAttack:
			if now-v.allocatedAt >= vm.guard {
				v.state = voiceSustain
			}
		case voiceRelease:
			if !vm.instruments[v.instrument].Active(i) {
				v.state = voiceFree
			}
		}
	}
}

// Disable takes an instrument out of allocation and frees its voices
// outright. The player uses it when an instrument's Render fails: the
// instrument cannot run its tails anymore, so waiting for them would leave
// the slots allocated forever.
func (vm *VoiceManager) Disable(instrument int) {
	if instrument < 0 || instrument >= len(vm.disabled) {
		return
	}
	vm.disabled[instrument] = true
	for i := range vm.voices {
		v := &vm.voices[i]
		if v.instrument == instrument && v.state != voiceFree {
			v.state = voiceFree
		}
	}
}

// ActiveVoices returns the number of slots currently allocated, including
// released voices whose tails are still sounding.
func (vm *VoiceManager) ActiveVoices() int {
	ret := 0
	for i := range vm.voices {
		if vm.voices[i].state != voiceFree {
			ret++
		}
	}
	return ret
}

func noteID(instrument int, pitch byte) int {
	return instrument*256 + int(pitch)
}
