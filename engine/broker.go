package engine

import (
	"sync"
	"time"

	"github.com/tahti-audio/tahti"
)

type (
	// Broker is the centralized message hub of the engine. It is used to
	// communicate between the transport, the player and the meter: one
	// buffered channel per recipient, many-to-one. Sends on the real-time
	// path are always non-blocking; when a queue is full the message is
	// dropped rather than stalling the audio callback. Additionally, the
	// broker has a sync.Pool of audio buffers, from which the player can
	// borrow buffers to pass rendered audio around without allocating new
	// memory every time.
	//
	// For closing goroutines, the broker has two channels per goroutine:
	// CloseXXX and FinishedXXX. CloseXXX has a capacity of 1, so requesting
	// a close never blocks; if the channel is already full, someone else
	// already requested the closure and dropping the message is fine.
	// FinishedXXX is closed by the goroutine once it has cleaned up, so
	// "<-FinishedXXX" waits for it, usually combined with a timeout.
	Broker struct {
		ToPlayer chan Intent
		ToModel  chan MsgToModel
		ToMeter  chan MsgToMeter

		CloseMeter    chan struct{}
		FinishedMeter chan struct{}

		bufferPool sync.Pool
	}

	// MsgToModel is a message sent to whoever owns the control side.
	// Frequently sent data (status, meter levels) is not boxed, to avoid
	// allocations; infrequent messages can be boxed into Data, as casting
	// pointer types to any is cheap.
	MsgToModel struct {
		HasStatus bool
		Status    Status

		HasLevels bool
		Levels    Levels

		Reset bool // playback started over; scopes and meters should reset

		Data any
	}

	// MsgToMeter carries rendered audio to the meter goroutine. Data is a
	// *tahti.AudioBuffer borrowed from the pool, or a func() which gets
	// executed in the meter goroutine.
	MsgToMeter struct {
		Reset bool
		Data  any
	}

	// Status is the player's periodic self-report: the error counters, how
	// many voices are sounding, and the fraction of the buffer period the
	// last Process call used.
	Status struct {
		Counters     CountersSnapshot
		ActiveVoices int
		CPULoad      float64
	}

	// Alert is a boxed notification for the control side, for conditions
	// that deserve more attention than a counter tick.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int

	// Intent is one control command for the player. Which fields are
	// meaningful depends on the kind; the zero value of the rest is
	// ignored. Intents apply in queue order at buffer boundaries.
	Intent struct {
		Kind   IntentKind
		Tick   tahti.Tick
		BPM    float64
		Loop   tahti.LoopRange
		Source tahti.EventSource
	}

	IntentKind int
)

const (
	None AlertPriority = iota
	Notify
	Warning
	Error
)

const (
	IntentPlay IntentKind = iota
	IntentPlayFrom
	IntentPause
	IntentStop
	IntentSeek
	IntentSource
	IntentTempo
	IntentLoop
)

// Critical reports whether the intent is a command that must not be lost on
// a full queue. Tempo and loop changes are not critical: a superseding one
// usually follows, and drops are counted.
func (k IntentKind) Critical() bool {
	return k <= IntentSource
}

const defaultQueueSize = 256

func NewBroker() *Broker {
	return NewBrokerWithQueueSize(defaultQueueSize)
}

// NewBrokerWithQueueSize creates a broker whose intent queue holds n
// entries. The queue capacity is the backpressure bound for control
// commands; everything queued applies at the next buffer boundary.
func NewBrokerWithQueueSize(n int) *Broker {
	return &Broker{
		ToPlayer:      make(chan Intent, n),
		ToModel:       make(chan MsgToModel, 1024),
		ToMeter:       make(chan MsgToMeter, 1024),
		CloseMeter:    make(chan struct{}, 1),
		FinishedMeter: make(chan struct{}),
		bufferPool:    sync.Pool{New: func() any { return &tahti.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an audio buffer from the buffer pool. The buffer
// is guaranteed to be empty. After use it should be returned to the pool
// with PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *tahti.AudioBuffer {
	return b.bufferPool.Get().(*tahti.AudioBuffer)
}

// PutAudioBuffer returns an audio buffer to the buffer pool. If the buffer
// is not empty, its length is resetted (but capacity kept) before returning
// it to the pool.
func (b *Broker) PutAudioBuffer(buf *tahti.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Returns true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TryReceive is a helper function to receive a value from a channel if one
// is immediately available. It is guaranteed to be non-blocking.
func TryReceive[T any](c <-chan T) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	default:
		return v, false
	}
}

// TimeoutReceive is a helper function to block until a value is received
// from a channel, or timing out after t. ok will be false if the timeout
// occurred or if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
