package vad

import (
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/audio"
)

// Mode selects which detection profile consumes incoming frames.
type Mode int

const (
	// ModeUtterance is tuned for true end-of-turn detection: a long trailing
	// silence window so the user is not cut off mid-sentence.
	ModeUtterance Mode = iota
	// ModeInterrupt is tuned for fastest-possible any-speech detection while
	// the avatar is talking. A false trigger here is cheap; a missed one is not.
	ModeInterrupt
)

func (m Mode) String() string {
	if m == ModeInterrupt {
		return "interrupt"
	}
	return "utterance"
}

// EventType is a speech boundary kind.
type EventType int

const (
	SpeechStart EventType = iota
	SpeechEnd
)

// Event is a detected speech boundary.
type Event struct {
	Type EventType
}

// ProfileConfig holds the tuning for one detection profile.
type ProfileConfig struct {
	Threshold float32 // voice probability threshold
	SilenceMs int     // trailing silence before a speech-end fires
}

// Config holds configuration for the segmenter.
type Config struct {
	ModelPath string
	Utterance ProfileConfig
	Interrupt ProfileConfig
}

// DefaultConfig returns the standard two-profile tuning.
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath: modelPath,
		Utterance: ProfileConfig{Threshold: 0.5, SilenceMs: 600},
		Interrupt: ProfileConfig{Threshold: 0.3, SilenceMs: 100},
	}
}

// frameDetector abstracts the underlying streaming detector so the segmenter
// can be exercised without the model file.
type frameDetector interface {
	processFrame(frame []float32) (start, end bool, err error)
	reset()
	destroy()
}

// sileroDetector wraps one Silero streaming detector instance.
type sileroDetector struct {
	inner *speech.Detector
}

func newSileroDetector(modelPath string, profile ProfileConfig) (*sileroDetector, error) {
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           audio.SampleRate,
		Threshold:            profile.Threshold,
		MinSilenceDurationMs: profile.SilenceMs,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero detector: %w", err)
	}
	return &sileroDetector{inner: d}, nil
}

func (d *sileroDetector) processFrame(frame []float32) (bool, bool, error) {
	ev, err := d.inner.DetectStreamFrame(frame)
	if err != nil {
		return false, false, err
	}
	if ev == nil {
		return false, false, nil
	}
	return ev.IsStart, ev.IsEnd, nil
}

func (d *sileroDetector) reset()   { _ = d.inner.Reset() }
func (d *sileroDetector) destroy() { d.inner.Destroy() }

// Segmenter converts fixed-size PCM frames into speech boundary events.
// It holds two independently-stateful detector profiles and routes frames
// to whichever is active.
type Segmenter struct {
	mu        sync.Mutex
	mode      Mode
	detectors map[Mode]frameDetector
}

// NewSegmenter constructs both profile detectors. A model load failure is
// returned to the caller and fails session startup; a session without speech
// detection cannot function.
func NewSegmenter(cfg Config) (*Segmenter, error) {
	utterance, err := newSileroDetector(cfg.ModelPath, cfg.Utterance)
	if err != nil {
		return nil, fmt.Errorf("utterance profile: %w", err)
	}
	interrupt, err := newSileroDetector(cfg.ModelPath, cfg.Interrupt)
	if err != nil {
		utterance.destroy()
		return nil, fmt.Errorf("interrupt profile: %w", err)
	}
	return newSegmenterWithDetectors(utterance, interrupt), nil
}

func newSegmenterWithDetectors(utterance, interrupt frameDetector) *Segmenter {
	return &Segmenter{
		mode: ModeUtterance,
		detectors: map[Mode]frameDetector{
			ModeUtterance: utterance,
			ModeInterrupt: interrupt,
		},
	}
}

// ProcessFrame feeds one 512-sample frame to the active profile and returns
// a boundary event if one fired. It never blocks and performs no I/O.
func (s *Segmenter) ProcessFrame(samples []int16) *Event {
	frame := audio.SamplesToFloat32(samples)

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.detectors[s.mode]
	start, end, err := d.processFrame(frame)
	if err != nil {
		// The detector can lose track of its own segment state when frames
		// straddle a mode switch; clearing it keeps later frames usable.
		d.reset()
		return nil
	}
	switch {
	case start:
		return &Event{Type: SpeechStart}
	case end:
		return &Event{Type: SpeechEnd}
	}
	return nil
}

// SetMode switches the active profile, resetting only the internal state of
// the profile being activated. The inactive profile keeps its state so a
// later switch back does not inherit mid-segment confusion.
func (s *Segmenter) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detectors[m].reset()
	s.mode = m
}

// Mode returns the currently active profile.
func (s *Segmenter) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Reset clears both profiles' internal state.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.detectors {
		d.reset()
	}
}

// Close releases detector resources.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.detectors {
		d.destroy()
	}
}
