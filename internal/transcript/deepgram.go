package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/audio"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/observability"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we customize.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramForwarder implements Forwarder using Deepgram's streaming API.
type DeepgramForwarder struct {
	config   *config.Config
	logger   zerolog.Logger
	client   *listenClient.WSCallback
	events   chan Event
	mu       sync.RWMutex
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc
	breaker  *resilience.CircuitBreaker
}

// NewDeepgramForwarder creates a new Deepgram streaming forwarder.
func NewDeepgramForwarder(cfg *config.Config, logger zerolog.Logger) *DeepgramForwarder {
	ctx, cancel := context.WithCancel(context.Background())

	breaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	return &DeepgramForwarder{
		config:  cfg,
		logger:  logger.With().Str("component", "transcript").Logger(),
		events:  make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
		breaker: breaker,
	}
}

// Start opens a Deepgram streaming transcription session.
func (d *DeepgramForwarder) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram forwarder is already active")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Error().Interface("response", errorResponse).Msg("deepgram stream error")

			d.breaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			select {
			case <-d.ctx.Done():
				return nil
			default:
				d.mu.Lock()
				d.isActive = false
				d.mu.Unlock()
				go d.attemptReconnect()
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create deepgram client: %w", err)
	}

	d.client = client
	d.isActive = true

	d.breaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Msg("deepgram streaming session started")
	return nil
}

// handleMessage converts Deepgram messages into transcript events.
func (d *DeepgramForwarder) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Metadata":
		d.logger.Debug().Interface("metadata", msg.Metadata).Msg("deepgram metadata")

	case "SpeechStarted", "UtteranceEnd":
		// Boundary detection is owned by the local segmenter; these are
		// informational only.
		d.logger.Debug().Str("type", msg.Type).Msg("deepgram stream event")

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		ev := Event{Text: alt.Transcript, IsFinal: msg.IsFinal}
		select {
		case d.events <- ev:
			d.logger.Debug().
				Bool("is_final", ev.IsFinal).
				Str("text", ev.Text).
				Msg("transcript event")
		default:
			d.logger.Warn().Msg("transcript event channel full, dropping event")
		}

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("unhandled deepgram message type")
	}
}

// SendAudio forwards raw PCM bytes verbatim to Deepgram.
func (d *DeepgramForwarder) SendAudio(pcm []byte) error {
	err := d.breaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram forwarder is not active")
		}

		if _, err := client.Write(pcm); err != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

// attemptReconnect re-establishes the streaming session with backoff.
func (d *DeepgramForwarder) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	if d.IsActive() {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	if err := resilience.Reconnect(d.ctx, d.Start, reconnectConfig); err != nil {
		d.logger.Error().Err(err).Msg("failed to reconnect deepgram stream")
	} else {
		d.logger.Info().Msg("deepgram stream reconnected")
	}
}

// Events returns the channel of transcript events.
func (d *DeepgramForwarder) Events() <-chan Event {
	return d.events
}

// Stop ends the streaming session.
func (d *DeepgramForwarder) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}

	d.client.Finish()
	d.isActive = false
	d.logger.Info().Msg("deepgram streaming session stopped")
	return nil
}

// Close releases the connection and stops reconnection attempts. The events
// channel is deliberately never closed: late SDK callbacks may still call
// handleMessage after Close, and a send on a closed channel would panic the
// process. Consumers stop reading when their own context ends.
func (d *DeepgramForwarder) Close() error {
	d.cancel()
	return d.Stop()
}

// IsActive returns whether the forwarder is currently streaming.
func (d *DeepgramForwarder) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}
