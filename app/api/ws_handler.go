package api

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"llamarag/app/agent"
)

const DefaultQueryTimeout = 5 * time.Minute

// messageConn is the part of a websocket connection a chat session uses.
type messageConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// WSHandler serves the chat socket: every text frame is a question and gets
// exactly one text frame back, in order.
type WSHandler struct {
	agent        *agent.Agent
	queryTimeout time.Duration
	logger       *zap.Logger
}

func NewWSHandler(a *agent.Agent, queryTimeout time.Duration, logger *zap.Logger) *WSHandler {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		agent:        a,
		queryTimeout: queryTimeout,
		logger:       logger.Named("ws"),
	}
}

// HandleUpgrade rejects plain HTTP requests to the socket path.
func (h *WSHandler) HandleUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WSHandler) HandleSession() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn)
	})
}

func (h *WSHandler) serve(conn messageConn) {
	h.logger.Debug("session opened")
	defer h.logger.Debug("session closed")

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		reply := h.answer(string(msg))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			h.logger.Debug("write failed", zap.Error(err))
			return
		}
	}
}

// answer never fails; errors become an "Error: ..." reply so the session continues.
func (h *WSHandler) answer(query string) string {
	ctx, cancel := context.WithTimeout(context.Background(), h.queryTimeout)
	defer cancel()

	reply, err := h.agent.Answer(ctx, query, 0)
	if err != nil {
		h.logger.Warn("query failed", zap.Error(err))
		return "Error: " + err.Error()
	}
	return reply.Answer
}
