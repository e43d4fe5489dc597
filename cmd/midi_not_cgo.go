//go:build !cgo

package cmd

import (
	"github.com/tahti-audio/tahti/engine"
)

func NewMidiContext(sampleRate int) engine.MIDIContext {
	// with no cgo, we cannot use MIDI, so return a null context
	return engine.NullMIDIContext{}
}
