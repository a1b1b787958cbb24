package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/audio"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/avatar"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/llm"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/observability"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/speculative"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/transcript"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/vad"
)

// segmenter is the speech boundary detector consumed by the orchestrator.
type segmenter interface {
	ProcessFrame(samples []int16) *vad.Event
	SetMode(m vad.Mode)
	Mode() vad.Mode
	Reset()
	Close()
}

// responder produces the avatar's reply for a finished utterance.
type responder interface {
	OnInterimTranscript(text, system string, history []llm.Turn)
	GetResponse(ctx context.Context, finalText, system string, history []llm.Turn) string
	Reset()
}

// Session owns the turn-taking state machine for one connected participant.
// Audio frames, transcript events and playback notifications arrive from
// independent goroutines; a single mutex over state and the two text buffers
// serializes them.
type Session struct {
	ID string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	segmenter segmenter
	engine    responder
	forwarder transcript.Forwarder
	speaker   avatar.Speaker

	settleDelay time.Duration

	mu          sync.Mutex
	state       State
	accumulated string
	interim     string
	history     []llm.Turn
	observers   []Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a session around its collaborators. The playback-finished
// callback is registered here so the completion of avatar speech feeds back
// into the state machine as an ordinary event.
func New(cfg *config.Config, logger zerolog.Logger, seg *vad.Segmenter, engine *speculative.Engine, forwarder transcript.Forwarder, speaker avatar.Speaker) *Session {
	return newSession(cfg, logger, seg, engine, forwarder, speaker)
}

func newSession(cfg *config.Config, logger zerolog.Logger, seg segmenter, engine responder, forwarder transcript.Forwarder, speaker avatar.Speaker) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := observability.NewSessionID()

	s := &Session{
		ID:          id,
		cfg:         cfg,
		logger:      logger.With().Str("session_id", id).Logger(),
		metrics:     observability.NewSessionMetrics(id),
		segmenter:   seg,
		engine:      engine,
		forwarder:   forwarder,
		speaker:     speaker,
		settleDelay: time.Duration(cfg.SettleDelayMs) * time.Millisecond,
		state:       StateIdle,
		ctx:         ctx,
		cancel:      cancel,
	}

	speaker.OnPlaybackFinished(s.handlePlaybackFinished)
	return s
}

// Start opens the transcription stream and begins consuming its events.
func (s *Session) Start() error {
	if err := s.forwarder.Start(); err != nil {
		return err
	}
	s.metrics.RecordSessionStart()

	s.wg.Add(1)
	go s.consumeTranscripts()

	s.logger.Info().Msg("session started")
	return nil
}

// AddObserver registers a downstream notification sink.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// State returns the current state. Primarily for logging and tests.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProcessFrame handles one fixed-size audio frame: it is fed to the
// segmenter on every call, and forwarded to transcription only while the
// avatar is not processing or speaking, so the avatar's own voice is never
// transcribed. Must keep up with real-time frame arrival.
func (s *Session) ProcessFrame(samples []int16) {
	s.mu.Lock()
	forwarding := s.state != StateProcessing && s.state != StateAvatarSpeaking
	s.mu.Unlock()

	if forwarding {
		pcm := audio.EncodePCM16LE(samples)
		if err := s.forwarder.SendAudio(pcm); err != nil {
			s.logger.Warn().Err(err).Msg("failed to forward audio")
			s.metrics.RecordError("forward_audio", "session")
		} else {
			s.metrics.RecordAudioBytesForwarded(int64(len(pcm)))
		}
	}

	if ev := s.segmenter.ProcessFrame(samples); ev != nil {
		s.handleVADEvent(ev)
	}
}

func (s *Session) handleVADEvent(ev *vad.Event) {
	switch ev.Type {
	case vad.SpeechStart:
		s.metrics.RecordVADEvent("start", s.segmenter.Mode().String())
		s.handleSpeechStart()
	case vad.SpeechEnd:
		s.metrics.RecordVADEvent("end", s.segmenter.Mode().String())
		s.handleSpeechEnd()
	}
}

func (s *Session) handleSpeechStart() {
	s.mu.Lock()

	switch s.state {
	case StateIdle:
		s.accumulated = ""
		s.interim = ""
		s.setStateLocked(StateListening)
		s.mu.Unlock()

	case StateAvatarSpeaking:
		// Barge-in. Resume listening immediately and interrupt playback
		// optimistically, before the service confirms the stop.
		s.accumulated = ""
		s.interim = ""
		s.engine.Reset()
		s.segmenter.SetMode(vad.ModeUtterance)
		s.setStateLocked(StateListening)
		s.mu.Unlock()

		s.metrics.RecordBargeIn()
		s.logger.Info().Msg("barge-in detected, interrupting playback")
		if err := s.speaker.Interrupt(s.ctx); err != nil {
			s.logger.Warn().Err(err).Msg("playback interrupt failed")
			s.metrics.RecordError("interrupt", "session")
		}
		s.notify(func(o Observer) { o.OnBargeIn() })

	default:
		s.mu.Unlock()
	}
}

func (s *Session) handleSpeechEnd() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.respond()
}

// respond runs the Processing phase: settle, pick the best transcript,
// obtain a response, hand off to the avatar.
func (s *Session) respond() {
	defer s.wg.Done()

	// Give the transcription service a moment to finalize trailing words.
	select {
	case <-time.After(s.settleDelay):
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	userText := strings.TrimSpace(s.accumulated)
	if userText == "" {
		userText = strings.TrimSpace(s.interim)
	}
	if userText == "" {
		// Nothing was actually said. Back to waiting.
		s.accumulated = ""
		s.interim = ""
		s.setStateLocked(StateIdle)
		s.segmenter.Reset()
		s.mu.Unlock()
		return
	}
	history := make([]llm.Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	s.metrics.RecordResponseStart()
	response := s.engine.GetResponse(s.ctx, userText, s.cfg.SystemPrompt, history)
	s.metrics.RecordResponseEnd()

	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	s.history = append(s.history,
		llm.Turn{Role: llm.RoleUser, Text: userText},
		llm.Turn{Role: llm.RoleAvatar, Text: response},
	)
	s.accumulated = ""
	s.interim = ""
	s.segmenter.SetMode(vad.ModeInterrupt)
	s.setStateLocked(StateAvatarSpeaking)
	s.mu.Unlock()

	if err := s.speaker.Speak(s.ctx, response); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch avatar speech")
		s.metrics.RecordError("speak", "session")

		s.mu.Lock()
		if s.state == StateAvatarSpeaking {
			s.segmenter.SetMode(vad.ModeUtterance)
			s.setStateLocked(StateIdle)
			s.segmenter.Reset()
		}
		s.mu.Unlock()
		return
	}

	s.logger.Info().
		Str("user_text", userText).
		Int("response_len", len(response)).
		Msg("avatar response dispatched")
	s.notify(func(o Observer) { o.OnTurnComplete(userText, response) })
}

// handlePlaybackFinished is invoked by the avatar collaborator when speech
// playback completes on its own (not via interruption).
func (s *Session) handlePlaybackFinished() {
	s.mu.Lock()
	if s.state != StateAvatarSpeaking {
		s.mu.Unlock()
		return
	}
	s.accumulated = ""
	s.interim = ""
	s.segmenter.SetMode(vad.ModeUtterance)
	s.setStateLocked(StateIdle)
	s.segmenter.Reset()
	s.mu.Unlock()

	s.notify(func(o Observer) { o.OnAvatarDone() })
}

func (s *Session) consumeTranscripts() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.forwarder.Events():
			if !ok {
				return
			}
			s.handleTranscript(ev)
		}
	}
}

func (s *Session) handleTranscript(ev transcript.Event) {
	text := strings.TrimSpace(ev.Text)

	s.mu.Lock()
	switch s.state {
	case StateListening:
		if ev.IsFinal && text != "" {
			s.appendFinalLocked(text)
		} else if !ev.IsFinal {
			s.interim = text
		}
		current := s.currentTextLocked()
		history := make([]llm.Turn, len(s.history))
		copy(history, s.history)
		s.mu.Unlock()

		if current != "" {
			s.engine.OnInterimTranscript(current, s.cfg.SystemPrompt, history)
			s.notify(func(o Observer) { o.OnInterimTranscript(current) })
		}

	case StateProcessing:
		// Trailing words may still finalize during the settle window.
		if ev.IsFinal && text != "" {
			s.appendFinalLocked(text)
		} else if !ev.IsFinal {
			s.interim = text
		}
		s.mu.Unlock()

	default:
		s.mu.Unlock()
	}
}

func (s *Session) appendFinalLocked(text string) {
	if s.accumulated == "" {
		s.accumulated = text
	} else {
		s.accumulated = s.accumulated + " " + text
	}
	s.interim = ""
}

func (s *Session) currentTextLocked() string {
	if s.interim == "" {
		return s.accumulated
	}
	if s.accumulated == "" {
		return s.interim
	}
	return s.accumulated + " " + s.interim
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	s.state = to
	s.metrics.RecordStateTransition(from.String(), to.String())
	s.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("state transition")
}

// notify fans an event out to every observer on its own goroutine. Observer
// panics are swallowed.
func (s *Session) notify(fn func(Observer)) {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		go func(o Observer) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn().Interface("panic", r).Msg("observer panicked")
				}
			}()
			fn(o)
		}(o)
	}
}

// Close tears the session down: cancels in-flight work and releases every
// collaborator. Safe to call once.
func (s *Session) Close() {
	s.cancel()
	s.engine.Reset()

	if err := s.forwarder.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close transcription stream")
	}
	if err := s.speaker.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close avatar connection")
	}
	s.segmenter.Close()

	s.wg.Wait()
	s.metrics.RecordSessionEnd()
	s.logger.Info().Msg("session closed")
}
