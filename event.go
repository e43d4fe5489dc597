package tahti

type (
	// NoteEvent is one note in a song: which instrument plays it, what pitch
	// and how hard, when it starts and how long it holds. Pitch and Velocity
	// follow the MIDI convention (0..127, middle C = 60). A zero Duration
	// means the note is never released by the scheduler; something else, such
	// as live input, has to release it.
	NoteEvent struct {
		Instrument int
		Pitch      byte
		Velocity   byte
		StartTick  Tick
		Duration   Tick
	}

	// EventSource is where the scheduler gets its notes from. Implementations
	// must be immutable snapshots: EventsInRange is called from the audio
	// callback and must not block, lock or allocate beyond growing dst, and
	// must return events ordered by StartTick, then Instrument, then original
	// insertion order so that simultaneous notes trigger deterministically.
	// Song.Snapshot is the canonical implementation; anything that can hand
	// out stable snapshots of note content can stand in for it.
	EventSource interface {
		// EventsInRange appends the events with StartTick in [from, to) to
		// dst and returns it.
		EventsInRange(from, to Tick, dst []NoteEvent) []NoteEvent

		// Length is the total length of the content in ticks; seeks are
		// clamped to it. Zero means unknown, which leaves seeks unclamped
		// above.
		Length() Tick
	}

	// Instrument is one sound generator behind the engine's uniform
	// trigger/release surface. The engine decides when and on which voice
	// slot notes play; the instrument owns everything about how they sound.
	// All methods are called from the audio callback and must be real-time
	// safe. The offset arguments are sample positions within the buffer of
	// the Render call that follows, letting the instrument start and stop
	// envelopes mid-buffer with sample accuracy.
	Instrument interface {
		Trigger(voice int, pitch, velocity byte, offset int)
		Release(voice int, offset int)

		// Active reports whether the voice still produces audible output.
		// The engine polls this once per buffer to know when a released
		// voice's tail has finished and the slot can be reused.
		Active(voice int) bool

		// Render mixes one buffer worth of audio into buf. Adding, not
		// overwriting: the engine zeroes the buffer and runs every
		// instrument over it in turn.
		Render(buf AudioBuffer) error
	}
)

// End returns the tick at which the note is released.
func (e NoteEvent) End() Tick {
	return e.StartTick + e.Duration
}
