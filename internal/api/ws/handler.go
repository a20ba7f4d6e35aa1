package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-relay-service/internal/clipboard"
	"speech-relay-service/internal/observability/logging"
	"speech-relay-service/internal/observability/metrics"
	"speech-relay-service/internal/service/recognition"
	"speech-relay-service/internal/service/session"
	"speech-relay-service/internal/service/transcript"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Config holds what every connection's controller is built from.
type Config struct {
	Factory   recognition.Factory
	Provider  string
	Language  string // initial language of every connection
	Publisher session.Publisher
	Sender    transcript.Sender
	Metrics   *metrics.Metrics
	IDs       *session.IDGenerator
}

// Handler upgrades requests and runs one session per connection.
type Handler struct {
	cfg      Config
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg Config) *Handler {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg.IDs == nil {
		cfg.IDs = session.NewIDGenerator()
	}
	return &Handler{
		cfg:     cfg,
		metrics: m,
		log:     logging.WithComponent("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	c := &conn{
		ws:  ws,
		log: logging.WithConnection(connID, r.RemoteAddr),
	}

	c.ctrl = session.NewController(session.Options{
		Factory:   h.cfg.Factory,
		Publisher: h.cfg.Publisher,
		Sender:    h.cfg.Sender,
		Provider:  h.cfg.Provider,
		OwnerID:   connID,
		Language:  h.cfg.Language,
		Metrics:   h.metrics,
		IDs:       h.cfg.IDs,
		OnError: func(err error) {
			c.write(errorMessage(CodeRecognitionFailed, err))
		},
	})
	c.ctrl.Subscribe(func(s session.Snapshot) {
		c.write(transcriptMessage(s))
	})

	h.metrics.WSConnections.Inc()
	defer h.metrics.WSConnections.Dec()

	c.log.Info().Bool("recognitionAvailable", c.ctrl.Available()).Msg("Session connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	c.serve(ctx)
	cancel()

	if err := c.ctrl.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to stop session on disconnect")
	}
	c.sends.Wait()
	c.close()
	c.log.Info().Msg("Session connection closed")
}

type conn struct {
	ws   *websocket.Conn
	ctrl *session.Controller
	log  zerolog.Logger

	writeMu sync.Mutex
	closed  bool

	sends sync.WaitGroup
}

func (c *conn) serve(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	c.write(transcriptMessage(c.ctrl.Snapshot()))

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("Connection read failed")
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := c.ctrl.SendAudio(ctx, data); err != nil {
				c.log.Debug().Err(err).Int("bytes", len(data)).Msg("Audio frame dropped")
			}
		case websocket.TextMessage:
			c.handle(ctx, data)
		}
	}
}

func (c *conn) handle(ctx context.Context, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.write(errorMessage(CodeInvalidCommand, fmt.Errorf("invalid command: %w", err)))
		return
	}

	c.log.Debug().Str("command", cmd.Type).Msg("Command received")

	switch cmd.Type {
	case CmdStart:
		language := cmd.Language
		if language == "" {
			language = c.ctrl.Snapshot().Language
		}
		if err := c.ctrl.Start(ctx, language); err != nil {
			c.fail(err)
		}

	case CmdStop:
		if err := c.ctrl.Stop(); err != nil {
			c.fail(err)
		}

	case CmdClear:
		c.ctrl.Clear()

	case CmdCopy:
		capture := &clipboard.Capture{}
		ok, err := c.ctrl.Copy(capture)
		if err != nil {
			c.fail(err)
			return
		}
		if ok {
			c.write(Message{Type: MsgClipboard, Text: capture.Text()})
		}

	case CmdSend:
		c.sends.Add(1)
		go func() {
			defer c.sends.Done()
			answer, err := c.ctrl.Send(ctx)
			if err != nil {
				c.fail(err)
				return
			}
			c.write(Message{Type: MsgAnswer, Answer: answer})
		}()

	case CmdLanguage:
		if err := c.ctrl.SetLanguage(cmd.Language); err != nil {
			c.fail(err)
		}

	default:
		c.write(errorMessage(CodeInvalidCommand, fmt.Errorf("unknown command %q", cmd.Type)))
	}
}

func (c *conn) fail(err error) {
	code := errorCode(err)
	if code == CodeRecognitionFailed {
		c.log.Error().Err(err).Msg("Session command failed")
	}
	c.write(errorMessage(code, err))
}

func (c *conn) write(msg Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug().Err(err).Str("type", msg.Type).Msg("Write failed")
	}
}

func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.ws.Close()
}
