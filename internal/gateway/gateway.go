package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/audio"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/avatar"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/llm"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/session"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/speculative"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/transcript"
	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/vad"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Validated by the fronting proxy; allow all here.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SessionFactory builds a fully wired session for one connection.
type SessionFactory func() (*session.Session, error)

// Gateway accepts participant websocket connections. Each connection streams
// binary PCM audio in and receives JSON turn-taking events out, backed by
// its own isolated session.
type Gateway struct {
	cfg        *config.Config
	logger     zerolog.Logger
	newSession SessionFactory
}

// New creates a gateway with the given session factory.
func New(cfg *config.Config, logger zerolog.Logger, factory SessionFactory) *Gateway {
	return &Gateway{
		cfg:        cfg,
		logger:     logger.With().Str("component", "gateway").Logger(),
		newSession: factory,
	}
}

// DefaultSessionFactory wires the production collaborators: silero-based
// segmentation, Deepgram transcription, the completion service and the
// avatar session service.
func DefaultSessionFactory(cfg *config.Config, logger zerolog.Logger) SessionFactory {
	return func() (*session.Session, error) {
		segConfig := vad.Config{
			ModelPath: cfg.VADModelPath,
			Utterance: vad.ProfileConfig{
				Threshold: cfg.UtteranceThreshold,
				SilenceMs: cfg.UtteranceSilenceMs,
			},
			Interrupt: vad.ProfileConfig{
				Threshold: cfg.InterruptThreshold,
				SilenceMs: cfg.InterruptSilenceMs,
			},
		}
		seg, err := vad.NewSegmenter(segConfig)
		if err != nil {
			return nil, err
		}

		speaker, err := avatar.NewClient(cfg, logger)
		if err != nil {
			seg.Close()
			return nil, err
		}

		completer := llm.NewClient(cfg)
		engine := speculative.NewEngine(completer, logger, nil, cfg.HistoryWindow)
		forwarder := transcript.NewDeepgramForwarder(cfg, logger)

		return session.New(cfg, logger, seg, engine, forwarder, speaker), nil
	}
}

// Handler returns the websocket endpoint for participant connections.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		sess, err := g.newSession()
		if err != nil {
			g.logger.Error().Err(err).Msg("failed to construct session")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"),
				time.Now().Add(time.Second))
			return
		}
		defer sess.Close()

		c := newConnection(conn, sess, g.cfg, g.logger)
		sess.AddObserver(c)

		if err := sess.Start(); err != nil {
			g.logger.Error().Err(err).Msg("failed to start session")
			return
		}

		g.logger.Info().Str("session_id", sess.ID).Str("remote", r.RemoteAddr).Msg("participant connected")
		c.readLoop()
		g.logger.Info().Str("session_id", sess.ID).Msg("participant disconnected")
	}
}

// serverEvent is one outbound JSON notification to the participant client.
type serverEvent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Response string `json:"response,omitempty"`
}

const (
	eventInterim    = "interim_transcript"
	eventTurn       = "turn_complete"
	eventBargeIn    = "barge_in"
	eventAvatarDone = "avatar_done"
)

// frameSink consumes decoded fixed-size audio frames.
type frameSink interface {
	ProcessFrame(samples []int16)
}

// connection pumps one participant's websocket: binary frames are buffered
// and sliced into fixed-size audio frames for the session, and session
// observer notifications are written back as JSON.
type connection struct {
	conn   *websocket.Conn
	sink   frameSink
	logger zerolog.Logger

	writeMu sync.Mutex

	buffer *audio.RingBuffer
	frame  []byte
}

func newConnection(conn *websocket.Conn, sess *session.Session, cfg *config.Config, logger zerolog.Logger) *connection {
	return &connection{
		conn:   conn,
		sink:   sess,
		logger: logger.With().Str("session_id", sess.ID).Logger(),
		buffer: audio.NewRingBuffer(cfg.AudioBufferSize),
		frame:  make([]byte, audio.FrameBytes),
	}
}

// clientMessage is one inbound JSON control message.
type clientMessage struct {
	Type string `json:"type"`
}

const (
	controlSessionStart = "session_start"
	controlSessionStop  = "session_stop"
)

func (c *connection) readLoop() {
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.ingestAudio(message)
		case websocket.TextMessage:
			if c.handleControl(message) {
				return
			}
		}
	}
}

// handleControl processes a JSON control message and reports whether the
// connection should shut down.
func (c *connection) handleControl(message []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("malformed control message")
		return false
	}

	switch msg.Type {
	case controlSessionStart:
		// The session is already live once the socket is accepted; this is
		// an explicit sync point for clients that buffer audio before it.
		c.logger.Debug().Msg("session start acknowledged")
	case controlSessionStop:
		c.logger.Info().Msg("client requested session stop")
		return true
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("unknown control message")
	}
	return false
}

// ingestAudio appends raw PCM bytes and drains every complete frame.
// Arbitrary chunk sizes from the client are tolerated; partial frames wait
// in the ring buffer for the next chunk.
func (c *connection) ingestAudio(pcm []byte) {
	if written := c.buffer.Write(pcm); written < len(pcm) {
		// Buffer overrun: the client is sending faster than real time.
		// Drop the backlog rather than stalling frame processing.
		c.logger.Warn().Int("dropped", len(pcm)-written).Msg("audio buffer overrun, dropping backlog")
		c.buffer.Clear()
		return
	}

	for c.buffer.Available() >= audio.FrameBytes {
		if n := c.buffer.Read(c.frame); n < audio.FrameBytes {
			return
		}
		c.sink.ProcessFrame(audio.DecodePCM16LE(c.frame))
	}
}

func (c *connection) send(ev serverEvent) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(ev); err != nil {
		c.logger.Debug().Err(err).Str("event", ev.Type).Msg("failed to send event")
	}
}

// Observer notifications from the session.

func (c *connection) OnInterimTranscript(text string) {
	c.send(serverEvent{Type: eventInterim, Text: text})
}

func (c *connection) OnTurnComplete(userText, response string) {
	c.send(serverEvent{Type: eventTurn, Text: userText, Response: response})
}

func (c *connection) OnBargeIn() {
	c.send(serverEvent{Type: eventBargeIn})
}

func (c *connection) OnAvatarDone() {
	c.send(serverEvent{Type: eventAvatarDone})
}
