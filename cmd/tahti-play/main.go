package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tahti-audio/tahti"
	"github.com/tahti-audio/tahti/cmd"
	"github.com/tahti-audio/tahti/engine"
	"github.com/tahti-audio/tahti/oto"
	"github.com/tahti-audio/tahti/rpc"
	"github.com/tahti-audio/tahti/synth"
	"github.com/tahti-audio/tahti/version"
)

// songFile is the on-disk form of a song: the note content plus the
// instrument definitions for the built-in synth.
type songFile struct {
	tahti.Song  `yaml:",inline"`
	Instruments []synth.Options `yaml:"instruments,omitempty"`
}

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. Defaults to the working directory.")
	play := flag.Bool("p", false, "Play the input songs (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered song as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered song as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	loop := flag.String("loop", "", "Play looping the given tick range, e.g. 0:1920. Overrides the loop of the song file.")
	bpm := flag.Float64("bpm", 0, "Override the song tempo (beats per minute).")
	midiInput := flag.String("midi-input", "", "Play live from the first MIDI input whose name starts with this prefix.")
	midiAny := flag.Bool("midi-any", false, "Play live from the first available MIDI input.")
	syncAddress := flag.String("sync", "", "Send the transport position to a position sync receiver at this address.")
	verbose := flag.Bool("verbose", false, "Log the status, level and counter reports of the player.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	var audioContext tahti.AudioContext
	var audioRate int
	var positions chan<- tahti.Position
	if *syncAddress != "" && *play {
		var err error
		positions, err = rpc.Sender(*syncAddress)
		if err != nil {
			logrus.WithError(err).Warn("position sync disabled")
			positions = nil
		}
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				os.Stdout.Write(contents)
				return nil
			}
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		inputBytes, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("could not read file %v: %v", filename, err)
		}
		var sf songFile
		if errJSON := json.Unmarshal(inputBytes, &sf); errJSON != nil {
			if errYaml := yaml.Unmarshal(inputBytes, &sf); errYaml != nil {
				return fmt.Errorf("the song could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
			}
		}
		if sf.Config == (tahti.Config{}) {
			sf.Config = tahti.DefaultConfig()
		}
		if *bpm > 0 {
			sf.Config.BPM = *bpm
		}
		if *loop != "" {
			r, err := parseLoop(*loop)
			if err != nil {
				return err
			}
			sf.Config.Loop = r
		}
		if err := sf.Song.Validate(); err != nil {
			return fmt.Errorf("invalid song file %v: %v", filename, err)
		}
		opts := sf.Instruments
		if len(opts) == 0 {
			opts = []synth.Options{synth.DefaultOptions()}
		}
		// the offline render and the live player need separately stateful
		// instruments, so build a fresh set for each
		newInstruments := func() []tahti.Instrument {
			instruments := make([]tahti.Instrument, len(opts))
			for i, o := range opts {
				instruments[i] = synth.NewSynth(sf.Config.SampleRate, sf.Config.Polyphony, o)
			}
			return instruments
		}
		snapshot := sf.Snapshot()
		if *rawOut || *wavOut {
			buffer, err := engine.Render(sf.Config, snapshot, newInstruments()...)
			if err != nil {
				return fmt.Errorf("rendering failed: %v", err)
			}
			if *rawOut {
				raw, err := buffer.Raw(*pcm)
				if err != nil {
					return fmt.Errorf("could not generate .raw file: %v", err)
				}
				if err := output(".raw", raw); err != nil {
					return fmt.Errorf("error outputting .raw file: %v", err)
				}
			}
			if *wavOut {
				wav, err := buffer.Wav(sf.Config.SampleRate, *pcm)
				if err != nil {
					return fmt.Errorf("could not generate .wav file: %v", err)
				}
				if err := output(".wav", wav); err != nil {
					return fmt.Errorf("error outputting .wav file: %v", err)
				}
			}
		}
		if *play {
			if audioContext == nil {
				audioContext, err = oto.NewContext(sf.Config.SampleRate)
				if err != nil {
					return fmt.Errorf("could not acquire oto AudioContext: %v", err)
				}
				audioRate = sf.Config.SampleRate
			} else if audioRate != sf.Config.SampleRate {
				return fmt.Errorf("audio output is open at %d Hz but the song wants %d Hz", audioRate, sf.Config.SampleRate)
			}
			if err := playSong(audioContext, sf.Config, snapshot, newInstruments(), positions, *midiInput, *midiAny); err != nil {
				return fmt.Errorf("playing failed: %v", err)
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			jsonfiles, err := filepath.Glob(filepath.Join(param, "*.json"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for json files: %v\n", param, err)
				retval = 1
				continue
			}
			ymlfiles, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for yml files: %v\n", param, err)
				retval = 1
				continue
			}
			files := append(ymlfiles, jsonfiles...)
			for _, file := range files {
				err := process(file)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			err := process(param)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	if positions != nil {
		close(positions)
	}
	os.Exit(retval)
}

// playSong plays one song through the real-time engine and returns when the
// song has ended or the user interrupts. With live MIDI input or a loop there
// is no natural end, so those play until interrupted.
func playSong(audioContext tahti.AudioContext, cfg tahti.Config, src tahti.EventSource, instruments []tahti.Instrument, positions chan<- tahti.Position, midiPrefix string, midiAny bool) error {
	broker := engine.NewBroker()
	player, err := engine.NewPlayer(broker, cfg, instruments...)
	if err != nil {
		return err
	}
	meter := engine.NewMeter(broker, cfg.SampleRate)
	go meter.Run()
	defer func() {
		meter.Close()
		engine.TimeoutReceive(broker.FinishedMeter, time.Second)
	}()
	midiContext := cmd.NewMidiContext(cfg.SampleRate)
	defer midiContext.Close()
	if midiPrefix != "" || midiAny {
		if err := midiContext.TryToOpenBy(midiPrefix, midiAny); err != nil {
			logrus.WithError(err).Warn("no MIDI input connected")
		} else {
			logrus.Info("MIDI input connected")
		}
	}
	transport := player.Transport()
	transport.SetSource(src)
	transport.Play()
	playWaiter := audioContext.Play(player.AudioSource(midiContext))
	defer playWaiter.Close()

	reader := player.PositionReader()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	holdOpen := midiContext.HasDeviceOpen() || cfg.Loop.Enabled
wait:
	for {
		select {
		case <-sig:
			logrus.Info("interrupted")
			break wait
		case msg := <-broker.ToModel:
			logModelMsg(msg)
		case <-ticker.C:
			pos := reader.Position()
			if positions != nil {
				engine.TrySend(positions, pos)
			}
			if !holdOpen && pos.Tick >= src.Length() {
				break wait
			}
		}
	}
	transport.Stop()
	// keep the audio running until the release tails have rung out
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok := engine.TimeoutReceive(broker.ToModel, 500*time.Millisecond)
		if !ok {
			break
		}
		logModelMsg(msg)
		if msg.HasStatus && msg.Status.ActiveVoices == 0 {
			break
		}
	}
	return nil
}

func logModelMsg(msg engine.MsgToModel) {
	if msg.HasStatus {
		logrus.WithFields(logrus.Fields{
			"voices": msg.Status.ActiveVoices,
			"load":   fmt.Sprintf("%.1f%%", msg.Status.CPULoad*100),
			"steals": msg.Status.Counters.VoiceSteals,
			"drops":  msg.Status.Counters.VoiceDrops,
		}).Debug("player status")
	}
	if msg.HasLevels {
		logrus.WithFields(logrus.Fields{
			"peak": fmt.Sprintf("%.1f / %.1f dB", msg.Levels.Peak[0], msg.Levels.Peak[1]),
			"rms":  fmt.Sprintf("%.1f / %.1f dB", msg.Levels.RMS[0], msg.Levels.RMS[1]),
		}).Debug("output levels")
	}
	if alert, ok := msg.Data.(engine.Alert); ok {
		entry := logrus.WithField("alert", alert.Name)
		switch alert.Priority {
		case engine.Error:
			entry.Error(alert.Message)
		case engine.Warning:
			entry.Warn(alert.Message)
		default:
			entry.Info(alert.Message)
		}
	}
}

func parseLoop(s string) (tahti.LoopRange, error) {
	startStr, endStr, found := strings.Cut(s, ":")
	if !found {
		return tahti.LoopRange{}, fmt.Errorf("invalid loop range %q, expected start:end", s)
	}
	start, err1 := strconv.ParseInt(startStr, 10, 64)
	end, err2 := strconv.ParseInt(endStr, 10, 64)
	if err1 != nil || err2 != nil {
		return tahti.LoopRange{}, fmt.Errorf("invalid loop range %q, expected start:end in ticks", s)
	}
	return tahti.LoopRange{Start: tahti.Tick(start), End: tahti.Tick(end), Enabled: true}, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Tahti command line utility for playing .yml/.json song files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
