package engine

import (
	"fmt"
	"time"

	"github.com/tahti-audio/tahti"
)

type (
	// Player is the playback engine core, meant to be driven from the audio
	// thread: Process is called with successive output buffers and renders
	// into them. It is controlled by intents from the transport via the
	// broker and by live MIDI events via the context. The player never
	// blocks and never allocates while processing; everything it sends out
	// goes through non-blocking channel sends.
	Player struct {
		clock  clock
		sched  scheduler
		voices VoiceManager

		counters    Counters
		cfg         tahti.Config
		instruments []tahti.Instrument
		broker      *Broker

		wins        []window
		statusEvery int // frames between status reports
		sinceStatus int
		load        float64 // CPULoad of the previous Process call
	}

	// PlayerProcessContext is the context given to the player when
	// processing audio. It is used to get the live MIDI events happening
	// during the current buffer and, when the host knows better than the
	// configuration, the current BPM.
	PlayerProcessContext interface {
		NextEvent(frame int) (event LiveNote, ok bool)
		FinishBlock(frame int)
		BPM() (bpm float64, ok bool)
	}

	// LiveNote is a live event triggering or releasing a note, with Frame
	// relative to the start of the current buffer.
	LiveNote struct {
		Frame      int
		On         bool
		Instrument int
		Pitch      byte
		Velocity   byte
	}

	// NullPlayerProcessContext is a PlayerProcessContext with no live
	// events, for offline rendering and hosts without MIDI input.
	NullPlayerProcessContext struct{}
)

func (NullPlayerProcessContext) NextEvent(frame int) (event LiveNote, ok bool) {
	return LiveNote{}, false
}
func (NullPlayerProcessContext) FinishBlock(frame int) {}
func (NullPlayerProcessContext) BPM() (float64, bool)  { return 0, false }

// maxWindowsPerBuffer bounds how many times one buffer can cross the loop
// seam; a loop shorter than the buffer wraps repeatedly and anything beyond
// this is counted as skipped instead.
const maxWindowsPerBuffer = 8

func NewPlayer(broker *Broker, cfg tahti.Config, instruments ...tahti.Instrument) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("player configuration: %w", err)
	}
	p := &Player{
		cfg:         cfg,
		broker:      broker,
		instruments: instruments,
		wins:        make([]window, 0, maxWindowsPerBuffer),
		statusEvery: cfg.SampleRate / 10,
	}
	p.clock.init(cfg, &p.counters)
	p.sched.init(cfg, &p.counters)
	p.voices.init(cfg, instruments, &p.counters)
	return p, nil
}

// Transport returns a control-side handle wired to this player's queue.
func (p *Player) Transport() *Transport {
	return NewTransport(p.broker, &p.counters)
}

// PositionReader returns a handle for reading the playhead; it can be used
// from any goroutine.
func (p *Player) PositionReader() *PositionReader {
	return &PositionReader{
		clock:       &p.clock,
		ppq:         p.cfg.PPQ,
		beatsPerBar: p.cfg.BeatsPerBar,
		sampleRate:  p.cfg.SampleRate,
	}
}

// Counters returns the player's error counters for direct inspection.
func (p *Player) Counters() *Counters {
	return &p.counters
}

// AudioSource adapts the player into a pull callback for an audio output.
// Every pull renders one buffer, with the context providing its live
// events.
func (p *Player) AudioSource(context PlayerProcessContext) tahti.AudioSource {
	return func(buf tahti.AudioBuffer) error {
		p.Process(buf, context)
		return nil
	}
}

// Process renders audio into the given buffer. It first applies everything
// the control side queued, then triggers and releases notes for the span of
// song the buffer covers, renders all instruments into the buffer and
// finally publishes the new playhead position. The context tells the player
// which MIDI events happen during the current buffer; they play even when
// the transport is not running.
func (p *Player) Process(buffer tahti.AudioBuffer, context PlayerProcessContext) {
	if len(buffer) == 0 {
		return
	}
	start := time.Now()
	p.processIntents()
	if bpm, ok := context.BPM(); ok && bpm > 0 && bpm != p.clock.bpm {
		p.clock.setTempo(bpm)
	}
	now := p.clock.frame
	p.voices.Poll(now)

	for ev, ok := context.NextEvent(0); ok && ev.Frame < len(buffer); ev, ok = context.NextEvent(ev.Frame) {
		offset := ev.Frame
		if offset < 0 {
			offset = 0
		}
		if ev.On {
			p.voices.Allocate(ev.Instrument, ev.Pitch, ev.Velocity, offset, now+int64(offset))
		} else {
			p.voices.ReleaseNote(ev.Instrument, ev.Pitch, offset, now+int64(offset))
		}
	}

	if p.clock.state == tahti.Playing {
		p.wins = p.clock.advance(len(buffer), p.wins[:0])
		for i, win := range p.wins {
			if i > 0 {
				// the playhead wrapped between these windows; releases
				// scheduled past the seam move with it
				p.sched.remapPending(p.clock.loop.End, p.clock.loop.Start)
			}
			p.sched.schedule(win, p.clock.ticksPerSample, len(buffer), &p.voices, now+int64(win.Offset))
		}
	}

	buffer.Zero()
	for i, instr := range p.instruments {
		if p.voices.disabled[i] {
			continue
		}
		if err := instr.Render(buffer); err != nil {
			p.voices.Disable(i)
			p.SendAlert("InstrumentCrash", fmt.Sprintf("instrument %d Render: %v", i, err), Error)
		}
	}

	bufPtr := p.broker.GetAudioBuffer() // borrow a buffer from the broker
	*bufPtr = append(*bufPtr, buffer...)
	if len(*bufPtr) == 0 || !TrySend(p.broker.ToMeter, MsgToMeter{Data: bufPtr}) {
		// if sending the rendered audio to the meter failed, return the
		// buffer to the broker
		p.broker.PutAudioBuffer(bufPtr)
	}

	p.clock.advanceFrame(len(buffer))
	p.clock.publish()
	context.FinishBlock(len(buffer))

	p.sinceStatus += len(buffer)
	if p.sinceStatus >= p.statusEvery {
		p.sinceStatus = 0
		TrySend(p.broker.ToModel, MsgToModel{HasStatus: true, Status: Status{
			Counters:     p.counters.Snapshot(),
			ActiveVoices: p.voices.ActiveVoices(),
			CPULoad:      p.load,
		}})
	}

	elapsed := time.Since(start)
	budget := time.Duration(len(buffer)) * time.Second / time.Duration(p.cfg.SampleRate)
	p.load = float64(elapsed) / float64(budget)
	if elapsed > budget {
		p.counters.Overruns.Add(1)
	} else if p.clock.state == tahti.Playing {
		// refill the lookahead in the headroom the buffer left over; after
		// an overrun the source query waits for a calmer buffer
		p.sched.prefetch(p.clock.tick)
	}
}

// processIntents applies every queued intent in order. Seeks, stops and
// jumps flush the scheduler and release all voices once after the whole
// batch, so a stop immediately followed by a seek does not double the work.
func (p *Player) processIntents() {
	flush, reset := false, false
	for {
		in, ok := TryReceive(p.broker.ToPlayer)
		if !ok {
			break
		}
		switch in.Kind {
		case IntentSource:
			p.setSource(in.Source)
		case IntentPlay, IntentPlayFrom:
			wasPlaying := p.clock.state == tahti.Playing
			flush = p.clock.apply(in) || flush
			if !wasPlaying || in.Kind == IntentPlayFrom {
				reset = true
			}
		default:
			flush = p.clock.apply(in) || flush
		}
	}
	if flush {
		p.flush()
	}
	if reset {
		TrySend(p.broker.ToModel, MsgToModel{Reset: true})
		TrySend(p.broker.ToMeter, MsgToMeter{Reset: true})
	}
}

// flush discards everything derived from the old playhead position: the
// lookahead cache, the pending note-offs, and the notes sounding right now.
// Their tails still ring out, but nothing old triggers after a jump.
func (p *Player) flush() {
	p.sched.invalidate()
	p.voices.ReleaseAll(0, p.clock.frame)
}

func (p *Player) setSource(src tahti.EventSource) {
	p.sched.setSource(src)
	var maxTick tahti.Tick
	if src != nil {
		maxTick = src.Length()
	}
	p.clock.maxTick = maxTick
}

// SendAlert sends an alert to the model. Like all sends from the player it
// is non-blocking, so the player thread cannot end up in a deadlock.
func (p *Player) SendAlert(name, message string, priority AlertPriority) {
	TrySend(p.broker.ToModel, MsgToModel{Data: Alert{
		Name:     name,
		Message:  message,
		Priority: priority,
	}})
}
