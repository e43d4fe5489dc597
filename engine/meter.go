package engine

import (
	"math"

	"github.com/viterin/vek/vek32"

	"github.com/tahti-audio/tahti"
)

type (
	// Decibel is a level relative to full scale; 0 dB is a signal of +-1.
	Decibel float32

	// Levels is one stereo meter reading: the peak over the sliding window
	// and the root mean square of the last analyzed chunk, per channel.
	Levels struct {
		Peak [2]Decibel
		RMS  [2]Decibel
	}

	// Meter measures output levels off the real-time path. The player ships
	// rendered buffers to it through the broker; the meter chops them into
	// 100 ms chunks, measures each chunk and publishes the reading to the
	// model channel, recycling the buffers back to the pool.
	Meter struct {
		broker    *Broker
		chunkSize int

		history tahti.AudioBuffer // partial chunk carried between buffers

		windows [2]RingBuffer[float32] // per-channel sliding window of chunk peaks
		tmp     []float32
		tmp2    []float32
		levels  Levels
	}

	// RingBuffer is a generic ring buffer with a buffer and a cursor.
	RingBuffer[T any] struct {
		Buffer []T
		Cursor int
	}
)

// meterWindowChunks is the sliding peak window: 4 chunks of 100 ms, so the
// displayed peak holds for 400 ms before it can fall.
const meterWindowChunks = 4

func NewMeter(broker *Broker, sampleRate int) *Meter {
	m := &Meter{
		broker:    broker,
		chunkSize: sampleRate / 10,
	}
	for chn := range m.windows {
		m.windows[chn] = RingBuffer[float32]{Buffer: make([]float32, meterWindowChunks)}
	}
	return m
}

// Run is the meter goroutine. It exits when CloseMeter is signalled and
// closes FinishedMeter on the way out.
func (m *Meter) Run() {
	defer close(m.broker.FinishedMeter)
	for {
		select {
		case <-m.broker.CloseMeter:
			return
		case msg := <-m.broker.ToMeter:
			if msg.Reset {
				m.reset()
			}
			switch data := msg.Data.(type) {
			case *tahti.AudioBuffer:
				m.analyze(*data)
				m.broker.PutAudioBuffer(data)
			case func():
				data()
			}
		}
	}
}

// Close requests the meter goroutine to exit. Never blocks; calling it more
// than once is fine.
func (m *Meter) Close() {
	TrySend(m.broker.CloseMeter, struct{}{})
}

func (m *Meter) analyze(buf tahti.AudioBuffer) {
	for {
		var chunk tahti.AudioBuffer
		if len(m.history) > 0 && len(m.history) < m.chunkSize {
			l := min(len(buf), m.chunkSize-len(m.history))
			m.history = append(m.history, buf[:l]...)
			if len(m.history) < m.chunkSize {
				return
			}
			chunk = m.history
			buf = buf[l:]
		} else {
			if len(buf) < m.chunkSize {
				m.history = m.history[:0]
				m.history = append(m.history, buf...)
				return
			}
			chunk = buf[:m.chunkSize]
			buf = buf[m.chunkSize:]
		}
		TrySend(m.broker.ToModel, MsgToModel{HasLevels: true, Levels: m.measure(chunk)})
	}
}

func (m *Meter) measure(chunk tahti.AudioBuffer) Levels {
	setSliceLength(&m.tmp, len(chunk))
	setSliceLength(&m.tmp2, len(chunk))
	for chn := 0; chn < 2; chn++ {
		// deinterleave the channel
		for i := 0; i < len(chunk); i++ {
			m.tmp[i] = chunk[i][chn]
		}
		// square the samples and average for the RMS power
		squared := vek32.Mul_Into(m.tmp2, m.tmp, m.tmp)
		m.levels.RMS[chn] = power2decibel(vek32.Mean(squared))
		// the peak is the maximum absolute value, smoothed by taking the
		// maximum over the last few chunks
		vek32.Abs_Inplace(m.tmp)
		m.windows[chn].WriteWrapSingle(vek32.Max(m.tmp))
		m.levels.Peak[chn] = amplitude2decibel(vek32.Max(m.windows[chn].Buffer))
	}
	return m.levels
}

func (m *Meter) reset() {
	m.history = m.history[:0]
	for chn := range m.windows {
		m.windows[chn].Cursor = 0
		for i := range m.windows[chn].Buffer {
			m.windows[chn].Buffer[i] = 0
		}
	}
	m.levels = Levels{}
}

func power2decibel(power float32) Decibel {
	return Decibel(10 * math.Log10(float64(power)))
}

func amplitude2decibel(amp float32) Decibel {
	return Decibel(20 * math.Log10(float64(amp)))
}

func (r *RingBuffer[T]) WriteWrapSingle(value T) {
	r.Cursor = (r.Cursor + 1) % len(r.Buffer)
	r.Buffer[r.Cursor] = value
}

func setSliceLength[T any](slice *[]T, length int) {
	if len(*slice) < length {
		*slice = append(*slice, make([]T, length-len(*slice))...)
	}
	*slice = (*slice)[:length]
}
