package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/observability"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/resilience"
)

// speakRequest is the dispatch payload for the avatar session service.
type speakRequest struct {
	Text string `json:"text"`
}

// playbackEvent is one JSON event from the avatar event stream.
type playbackEvent struct {
	Type string `json:"type"`
}

const eventPlaybackFinished = "playback_finished"

// Client implements Speaker against the avatar session service: REST for
// speak/interrupt, a websocket event stream for playback notifications.
type Client struct {
	config     *config.Config
	logger     zerolog.Logger
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker

	mu     sync.Mutex
	conn   *websocket.Conn
	onDone func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates an avatar client and connects its event stream. The
// playback-finished callback is registered by the session during wiring.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:     cfg,
		logger:     logger.With().Str("component", "avatar").Logger(),
		httpClient: &http.Client{},
		breaker: resilience.NewCircuitBreaker(
			"avatar",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := c.connectEvents(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect avatar event stream: %w", err)
	}
	go c.readEvents()

	return c, nil
}

func (c *Client) connectEvents() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.AvatarEventsURL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// readEvents pumps the websocket event stream, reconnecting with backoff
// on failure until the client is closed.
func (c *Client) readEvents() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			c.logger.Warn().Err(err).Msg("avatar event stream read failed, reconnecting")

			reconnectConfig := &resilience.ReconnectConfig{
				MaxAttempts: c.config.ReconnectMaxAttempts,
				Backoff:     time.Duration(c.config.ReconnectBackoff) * time.Millisecond,
				Multiplier:  2.0,
				MaxBackoff:  30 * time.Second,
			}
			if err := resilience.Reconnect(c.ctx, c.connectEvents, reconnectConfig); err != nil {
				c.logger.Error().Err(err).Msg("failed to reconnect avatar event stream")
				return
			}
			continue
		}

		var ev playbackEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Error().Err(err).Msg("failed to parse avatar event")
			continue
		}

		if ev.Type == eventPlaybackFinished {
			c.mu.Lock()
			fn := c.onDone
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Speak dispatches synthesis/playback of text.
func (c *Client) Speak(ctx context.Context, text string) error {
	err := c.breaker.Call(func() error {
		return c.post(ctx, "/speak", speakRequest{Text: text})
	})
	observability.UpdateCircuitBreakerState("avatar", int(c.breaker.GetState()))
	observability.RecordAvatarRequest("speak", err == nil)
	if err != nil {
		observability.IncrementCircuitBreakerFailures("avatar")
		return fmt.Errorf("avatar speak dispatch failed: %w", err)
	}
	return nil
}

// Interrupt requests that current playback stop immediately. Callers treat
// this as optimistic: the session moves on before confirmation. A missed
// interrupt leaves the avatar talking over the user, so transient failures
// are retried per the configured retry budget.
func (c *Client) Interrupt(ctx context.Context) error {
	retryConfig := &resilience.RetryConfig{
		MaxAttempts:    c.config.RetryMaxAttempts,
		InitialBackoff: time.Duration(c.config.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}
	err := resilience.Retry(func() error {
		return c.post(ctx, "/interrupt", struct{}{})
	}, retryConfig, retryableDispatchError)
	observability.RecordAvatarRequest("interrupt", err == nil)
	if err != nil {
		return fmt.Errorf("avatar interrupt failed: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AvatarAPIURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AvatarAPIKey != "" {
		req.Header.Set("x-api-key", c.config.AvatarAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// statusError is a non-2xx reply from the avatar service.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("avatar service returned status %d", e.code)
}

// retryableDispatchError treats server-side failures and transient network
// errors as retryable; client errors (bad request, bad key) are not.
func retryableDispatchError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return resilience.IsRetryableNetworkError(err)
}

// OnPlaybackFinished registers the playback-finished callback.
func (c *Client) OnPlaybackFinished(fn func()) {
	c.mu.Lock()
	c.onDone = fn
	c.mu.Unlock()
}

// Close releases the event connection.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
