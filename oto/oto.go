// Package oto plays the engine's output through the system audio device
// using the ebitengine/oto library.
package oto

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/tahti-audio/tahti"
)

type (
	// Context is a tahti.AudioContext backed by an oto context. One process
	// can only hold one; create it once and reuse it for every playback.
	Context struct {
		context *oto.Context
	}

	playerCloserWaiter struct {
		player *oto.Player
	}

	// sourceReader adapts a pull-based AudioSource into the io.Reader an
	// oto player consumes, converting stereo float32 frames into
	// interleaved little-endian bytes chunk by chunk.
	sourceReader struct {
		source tahti.AudioSource
		buf    tahti.AudioBuffer
		bytes  []byte
		pos    int
		err    error
	}
)

// renderChunkFrames is how many frames are pulled from the source per
// render call, regardless of how large reads the device makes. Queued
// transport commands apply between chunks, so this bounds their latency.
const renderChunkFrames = 512

// otoBufferSize is the device-side buffer length in frames.
const otoBufferSize = 8192

// NewContext initializes the audio device for stereo float32 output at the
// given sample rate. It blocks until the device is ready.
func NewContext(sampleRate int) (*Context, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(otoBufferSize) * time.Second / time.Duration(sampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{context: context}, nil
}

// Play starts playing from the source and returns a handle to stop it or to
// wait for it to finish. Finite sources finish when they return io.EOF and
// the device buffer has drained; the engine's live source plays until
// closed.
func (c *Context) Play(r tahti.AudioSource) tahti.CloserWaiter {
	player := c.context.NewPlayer(&sourceReader{
		source: r,
		buf:    make(tahti.AudioBuffer, renderChunkFrames),
	})
	player.Play()
	return &playerCloserWaiter{player: player}
}

// Close releases the audio device. The underlying oto context cannot be
// destroyed, so this suspends it; a later Play would need a new Context.
func (c *Context) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (p *playerCloserWaiter) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (p *playerCloserWaiter) Wait() {
	for p.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	total := 0
	for len(p) > 0 {
		if s.pos >= len(s.bytes) {
			if err := s.source(s.buf); err != nil {
				s.err = err
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
			s.bytes = appendFloat32LE(s.bytes[:0], s.buf)
			s.pos = 0
		}
		n := copy(p, s.bytes[s.pos:])
		s.pos += n
		p = p[n:]
		total += n
	}
	return total, nil
}
