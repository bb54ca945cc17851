package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Inbound message types.
const (
	TypeMessage = "message"
	TypeStop    = "stop"
	TypeReset   = "reset"
)

// Outbound message types.
const (
	TypeConnected   = "connected"
	TypeTurn        = "turn"
	TypeComposing   = "composing"
	TypeEntry       = "entry"
	TypeInterrupted = "interrupted"
	TypeDone        = "done"
	TypeCleared     = "cleared"
	TypeError       = "error"
)

// WebSocketHandler plays agent replies over a WebSocket. A new message on the
// connection interrupts the reply still playing.
type WebSocketHandler struct {
	conversation *playback.Conversation
	chatSvc      *chatservice.Service
	personaStore persona.Store
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(conversation *playback.Conversation, chatSvc *chatservice.Service, personaStore persona.Store) *WebSocketHandler {
	return &WebSocketHandler{
		conversation: conversation,
		chatSvc:      chatSvc,
		personaStore: personaStore,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: slog.Default().With("component", "websocket"),
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	mu sync.Mutex

	// turn counts accepted messages so a slow reply cannot start after a newer one.
	turn atomic.Uint64
	wg   sync.WaitGroup
}

func (c *connection) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *connection) sendError(message string) {
	if err := c.send(TypeError, map[string]string{"message": message}); err != nil {
		c.logger.Warn("write error failed", "error", err)
	}
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// SetComposing and Append let a connection act as a playback sink.
func (c *connection) SetComposing(on bool) {
	if err := c.send(TypeComposing, map[string]bool{"composing": on}); err != nil {
		c.logger.Debug("write composing failed", "error", err)
	}
}

func (c *connection) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	return entry, c.send(TypeEntry, entry)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	p, ok := h.personaStore.FindByID(session.PersonaID)
	if !ok {
		http.Error(w, "persona not found", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &connection{conn: conn, sessionID: sessionID, logger: h.logger.With("session_id", sessionID)}
	c.logger.Info("new connection")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	if err := c.send(TypeConnected, map[string]any{
		"persona":     p.ID,
		"openingLine": p.OpeningLine,
	}); err != nil {
		return
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}

		h.handleMessage(ctx, c, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, msg *inboundMessage) {
	switch msg.Type {
	case TypeMessage:
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil || strings.TrimSpace(text.Text) == "" {
			c.sendError("message text is required")
			return
		}
		turn := c.turn.Add(1)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			h.processUserText(ctx, c, turn, text.Text)
		}()
	case TypeStop:
		c.turn.Add(1)
		h.conversation.Stop(c.sessionID)
	case TypeReset:
		c.turn.Add(1)
		if err := h.conversation.Reset(ctx, c.sessionID); err != nil {
			c.sendError(err.Error())
			return
		}
		_ = c.send(TypeCleared, nil)
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) processUserText(ctx context.Context, c *connection, turn uint64, text string) {
	exchange, err := h.conversation.Prepare(ctx, c.sessionID, text)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if c.turn.Load() != turn {
		c.logger.Debug("dropping stale reply", "turn", turn)
		return
	}

	if err := c.send(TypeTurn, map[string]any{
		"user":      exchange.User,
		"emotion":   exchange.Turn.Emotion,
		"intensity": exchange.Turn.Intensity,
		"parts":     len(exchange.Turn.Parts),
		"meta":      exchange.Reply.Meta,
	}); err != nil {
		return
	}

	err = h.conversation.Play(ctx, exchange, c)
	switch {
	case errors.Is(err, sequencer.ErrSuperseded), errors.Is(err, sequencer.ErrStopped):
		_ = c.send(TypeInterrupted, map[string]string{"reason": err.Error()})
	case ctx.Err() != nil:
	case err != nil:
		c.sendError(err.Error())
	default:
		_ = c.send(TypeDone, map[string]int{"parts": len(exchange.Turn.Parts)})
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
