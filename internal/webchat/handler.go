package webchat

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parleyai/parley-platform/internal/chatbot"
	"github.com/parleyai/parley-platform/pkg/logging"
)

//go:embed widget.js
var widgetJS []byte

// ChatService is the slice of the chat pipeline the widget needs.
type ChatService interface {
	ProcessMessage(ctx context.Context, text, sessionID, userID string, contextOverride []byte) *chatbot.Reply
	GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]chatbot.Message, error)
}

// ServiceResolver maps a bot ID to its chat service.
type ServiceResolver func(ctx context.Context, botID uuid.UUID) (ChatService, error)

// Handler manages web chat connections and messages.
type Handler struct {
	resolve  ServiceResolver
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// InboundFrame is what the widget sends.
type InboundFrame struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text,omitempty"`
}

// OutboundFrame is what we send to the widget.
type OutboundFrame struct {
	Type        string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text        string           `json:"text,omitempty"`
	Role        string           `json:"role,omitempty"` // "assistant" or "user"
	SessionID   string           `json:"session_id,omitempty"`
	Intent      string           `json:"intent,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Timestamp   string           `json:"timestamp,omitempty"`
	Messages    []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(resolve ServiceResolver, logger *logging.Logger) *Handler {
	if resolve == nil {
		panic("webchat: service resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		resolve: resolve,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The widget is embedded on arbitrary customer sites.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(r.URL.Query().Get("bot"))
	if err != nil {
		http.Error(w, "missing or invalid bot parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("webchat: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.serveWS(r.Context(), conn, botID, r.URL.Query().Get("session"))
}

func (h *Handler) serveWS(ctx context.Context, conn *websocket.Conn, botID uuid.UUID, sessionID string) {
	svc, err := h.resolve(ctx, botID)
	if err != nil {
		_ = conn.WriteJSON(OutboundFrame{Type: "error", Text: "bot unavailable"})
		h.logger.Warn("webchat: bot unavailable", "bot_id", botID, "error", err)
		return
	}

	if sessionID == "" {
		sessionID = generateSessionID()
	}

	// Send session info
	_ = conn.WriteJSON(OutboundFrame{Type: "session", SessionID: sessionID})

	// Send history if the session has one
	if msgs, err := svc.GetConversationHistory(ctx, sessionID, 50); err == nil && len(msgs) > 0 {
		_ = conn.WriteJSON(OutboundFrame{Type: "history", Messages: historyFrames(msgs)})
	}

	h.logger.Info("webchat: connection opened", "bot_id", botID, "session_id", sessionID)

	for {
		var frame InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			h.logger.Debug("webchat: connection closed", "bot_id", botID, "error", err)
			return
		}

		if frame.Type == "ping" {
			_ = conn.WriteJSON(OutboundFrame{Type: "pong"})
			continue
		}

		if frame.Type != "message" || strings.TrimSpace(frame.Text) == "" {
			continue
		}

		_ = conn.WriteJSON(OutboundFrame{Type: "typing"})
		reply := svc.ProcessMessage(ctx, frame.Text, sessionID, "", nil)
		_ = conn.WriteJSON(replyFrame(reply))
	}
}

func replyFrame(reply *chatbot.Reply) OutboundFrame {
	return OutboundFrame{
		Type:        "message",
		Role:        "assistant",
		Text:        reply.Text,
		SessionID:   reply.SessionID,
		Intent:      reply.Intent,
		Confidence:  reply.Confidence,
		Suggestions: reply.Suggestions,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// historyFrames expands stored turns into alternating user/assistant entries.
func historyFrames(msgs []chatbot.Message) []HistoryMessage {
	history := make([]HistoryMessage, 0, 2*len(msgs))
	for _, m := range msgs {
		ts := m.CreatedAt.UTC().Format(time.RFC3339)
		history = append(history,
			HistoryMessage{Role: "user", Text: m.UserMessage, Timestamp: ts},
			HistoryMessage{Role: "assistant", Text: m.BotResponse, Timestamp: ts},
		)
	}
	return history
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID     string `json:"bot_id"`
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	botID, err := uuid.Parse(req.BotID)
	if err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "bot_id and text are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	svc, err := h.resolve(r.Context(), botID)
	if err != nil {
		h.logger.Warn("webchat: bot unavailable", "bot_id", botID, "error", err)
		http.Error(w, "bot unavailable", http.StatusNotFound)
		return
	}

	reply := svc.ProcessMessage(r.Context(), req.Text, req.SessionID, "", nil)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	botID, err := uuid.Parse(r.URL.Query().Get("bot"))
	sessionID := r.URL.Query().Get("session")
	if err != nil || sessionID == "" {
		http.Error(w, "bot and session parameters required", http.StatusBadRequest)
		return
	}

	svc, err := h.resolve(r.Context(), botID)
	if err != nil {
		http.Error(w, "bot unavailable", http.StatusNotFound)
		return
	}

	msgs, err := svc.GetConversationHistory(r.Context(), sessionID, 100)
	if err != nil && !errors.Is(err, chatbot.ErrConversationNotFound) {
		h.logger.Error("webchat: failed to load history", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": historyFrames(msgs)})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(widgetJS)
}
