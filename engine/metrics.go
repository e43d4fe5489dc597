package engine

import "sync/atomic"

type (
	// Counters collects everything that can go sideways on the real-time
	// path. The audio callback never returns errors and never logs; it bumps
	// one of these and moves on, and the control side decides what, if
	// anything, to tell the user. The fields are atomics so the control side
	// can read them at any rate without synchronizing with the callback.
	Counters struct {
		// VoiceSteals counts notes that displaced a sounding voice.
		VoiceSteals atomic.Uint64
		// VoiceDrops counts notes dropped because every voice was younger
		// than the steal guard.
		VoiceDrops atomic.Uint64
		// InvalidEvents counts events referring to instruments that do not
		// exist.
		InvalidEvents atomic.Uint64
		// QueueOverflows counts intents submitted against a full queue.
		QueueOverflows atomic.Uint64
		// Overruns counts buffers whose processing time got close enough to
		// the deadline that optional work was skipped afterwards.
		Overruns atomic.Uint64
		// SkippedWindows counts schedule windows abandoned because a
		// degenerate loop wrapped more times in one buffer than the window
		// list can hold.
		SkippedWindows atomic.Uint64
		// NoteOffEvictions counts pending note-offs fired early because the
		// ledger was full.
		NoteOffEvictions atomic.Uint64
		// LoopWraps counts loop wrap-arounds.
		LoopWraps atomic.Uint64
		// ClampedSeeks counts seek targets that were out of range.
		ClampedSeeks atomic.Uint64
	}

	// CountersSnapshot is a plain copy of the counters for the control side.
	CountersSnapshot struct {
		VoiceSteals      uint64
		VoiceDrops       uint64
		InvalidEvents    uint64
		QueueOverflows   uint64
		Overruns         uint64
		SkippedWindows   uint64
		NoteOffEvictions uint64
		LoopWraps        uint64
		ClampedSeeks     uint64
	}
)

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		VoiceSteals:      c.VoiceSteals.Load(),
		VoiceDrops:       c.VoiceDrops.Load(),
		InvalidEvents:    c.InvalidEvents.Load(),
		QueueOverflows:   c.QueueOverflows.Load(),
		Overruns:         c.Overruns.Load(),
		SkippedWindows:   c.SkippedWindows.Load(),
		NoteOffEvictions: c.NoteOffEvictions.Load(),
		LoopWraps:        c.LoopWraps.Load(),
		ClampedSeeks:     c.ClampedSeeks.Load(),
	}
}
