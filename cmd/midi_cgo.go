//go:build cgo

package cmd

import (
	"github.com/tahti-audio/tahti/engine"
	"github.com/tahti-audio/tahti/midi"
)

func NewMidiContext(sampleRate int) engine.MIDIContext {
	return midi.NewContext(sampleRate)
}
