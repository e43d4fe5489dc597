package engine

type (
	// MIDIContext is a PlayerProcessContext that additionally manages live
	// input devices. Implementations live outside this package so the
	// engine does not depend on any particular MIDI backend.
	MIDIContext interface {
		PlayerProcessContext
		InputDevices(yield func(device MIDIDevice) bool)
		TryToOpenBy(namePrefix string, takeFirst bool) error
		HasDeviceOpen() bool
		Close()
	}

	MIDIDevice interface {
		String() string
		Open() error
	}
)

// NullMIDIContext is a mockup MIDIContext if you don't want to create a real
// one.
type NullMIDIContext struct{ NullPlayerProcessContext }

func (NullMIDIContext) InputDevices(yield func(device MIDIDevice) bool)     {}
func (NullMIDIContext) TryToOpenBy(namePrefix string, takeFirst bool) error { return nil }
func (NullMIDIContext) HasDeviceOpen() bool                                 { return false }
func (NullMIDIContext) Close()                                              {}
