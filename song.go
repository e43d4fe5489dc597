package tahti

import (
	"fmt"
	"sort"
)

type (
	// Song is the serializable form of a piece: the engine configuration and
	// the note content. This is what the YAML song files contain. A Song is
	// the mutable, editable representation; the engine never reads it
	// directly, it reads immutable Snapshots built from it.
	Song struct {
		Config Config
		Length Tick `yaml:",omitempty"` // 0 = up to the last note's release
		Tracks []Track
	}

	// Track is a named lane of note events bound to one instrument index.
	// Tracks exist for the humans editing the song; the scheduler sees only
	// the flattened, sorted event list of a Snapshot.
	Track struct {
		Name       string `yaml:",omitempty"`
		Instrument int
		Events     []NoteEvent
	}

	// Snapshot is an immutable, flattened view of a Song's notes, sorted by
	// StartTick, then Instrument, then the order the events appeared in the
	// Song. It implements EventSource and is safe for concurrent reads from
	// the audio callback while the Song it was built from keeps being edited:
	// building copies every event.
	Snapshot struct {
		events []NoteEvent
		length Tick
	}
)

// Copy makes a deep copy of a Song.
func (s *Song) Copy() Song {
	tracks := make([]Track, len(s.Tracks))
	for i, t := range s.Tracks {
		tracks[i] = t.Copy()
	}
	return Song{Config: s.Config, Length: s.Length, Tracks: tracks}
}

// Copy makes a deep copy of a Track.
func (t *Track) Copy() Track {
	events := make([]NoteEvent, len(t.Events))
	copy(events, t.Events)
	return Track{Name: t.Name, Instrument: t.Instrument, Events: events}
}

// Validate checks the configuration and every event. Song files come from
// disk, so the errors name the track and event index to point at the broken
// entry.
func (s *Song) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.Length < 0 {
		return fmt.Errorf("song length %d is negative", s.Length)
	}
	for i, t := range s.Tracks {
		for j, e := range t.Events {
			if e.StartTick < 0 {
				return fmt.Errorf("track %d event %d starts at negative tick %d", i, j, e.StartTick)
			}
			if e.Duration < 0 {
				return fmt.Errorf("track %d event %d has negative duration %d", i, j, e.Duration)
			}
			if e.Pitch > 127 {
				return fmt.Errorf("track %d event %d pitch %d outside 0..127", i, j, e.Pitch)
			}
			if e.Velocity > 127 {
				return fmt.Errorf("track %d event %d velocity %d outside 0..127", i, j, e.Velocity)
			}
		}
	}
	return nil
}

// TotalEvents returns the number of events over all tracks.
func (s *Song) TotalEvents() int {
	ret := 0
	for _, t := range s.Tracks {
		ret += len(t.Events)
	}
	return ret
}

// Snapshot flattens the song into an immutable EventSource. Events inherit
// the instrument index of their track unless the event sets its own non-zero
// Instrument; that way a track plays one instrument without repeating the
// index on every note, but single notes can still be routed elsewhere.
func (s *Song) Snapshot() *Snapshot {
	events := make([]NoteEvent, 0, s.TotalEvents())
	var last Tick
	for _, t := range s.Tracks {
		for _, e := range t.Events {
			if e.Instrument == 0 {
				e.Instrument = t.Instrument
			}
			events = append(events, e)
			if e.End() > last {
				last = e.End()
			}
		}
	}
	length := s.Length
	if length == 0 {
		length = last
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartTick != events[j].StartTick {
			return events[i].StartTick < events[j].StartTick
		}
		return events[i].Instrument < events[j].Instrument
	})
	return &Snapshot{events: events, length: length}
}

// EventsInRange implements EventSource with a binary search for the first
// event at or after from, then a linear walk up to to. dst is appended to and
// returned, so a caller reusing a pre-sized slice does not allocate.
func (s *Snapshot) EventsInRange(from, to Tick, dst []NoteEvent) []NoteEvent {
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].StartTick >= from
	})
	for ; i < len(s.events) && s.events[i].StartTick < to; i++ {
		dst = append(dst, s.events[i])
	}
	return dst
}

// Length implements EventSource.
func (s *Snapshot) Length() Tick {
	return s.length
}

// NumEvents returns the number of events in the snapshot.
func (s *Snapshot) NumEvents() int {
	return len(s.events)
}
