package tahti

import "io"

type (
	// AudioBuffer is a buffer of stereo audio samples.
	AudioBuffer [][2]float32

	// AudioSource is a callback that fills the whole buffer with audio every
	// time it is called. Returning an error stops the playback; io.EOF is the
	// orderly way to signal that the source has nothing more to play.
	AudioSource func(buf AudioBuffer) error

	// AudioContext represents the low-level audio drivers. There should be at
	// most one AudioContext alive at once. The interface is implemented by
	// the oto package; tests use in-memory fakes.
	AudioContext interface {
		// Play starts playing the source and keeps pulling it until the
		// source errors or the returned CloserWaiter is closed.
		Play(r AudioSource) CloserWaiter
		Close() error
	}

	// CloserWaiter is the handle to one ongoing playback: Close stops it,
	// Wait blocks until it has finished on its own.
	CloserWaiter interface {
		Close() error
		Wait()
	}
)

// Source returns an AudioSource that plays the buffer back once and then
// finishes with io.EOF, padding the final partial buffer with silence.
func (buf AudioBuffer) Source() AudioSource {
	pos := 0
	return func(out AudioBuffer) error {
		if pos >= len(buf) {
			return io.EOF
		}
		n := copy(out, buf[pos:])
		pos += n
		for i := n; i < len(out); i++ {
			out[i] = [2]float32{}
		}
		return nil
	}
}

// Zero fills the buffer with silence.
func (buf AudioBuffer) Zero() {
	for i := range buf {
		buf[i] = [2]float32{}
	}
}
