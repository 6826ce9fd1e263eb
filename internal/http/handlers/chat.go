package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parleyai/parley-platform/internal/chatbot"
	"github.com/parleyai/parley-platform/internal/http/middleware"
	"github.com/parleyai/parley-platform/pkg/logging"
)

// ServiceRegistry resolves a bot ID to its chat service.
type ServiceRegistry interface {
	ServiceFor(ctx context.Context, botID uuid.UUID) (*chatbot.Service, error)
}

// OwnershipChecker verifies a bot belongs to the calling organization.
type OwnershipChecker interface {
	BotInOrg(ctx context.Context, botID, orgID uuid.UUID) (bool, error)
}

// ChatHandler serves the tenant-facing conversation endpoints.
type ChatHandler struct {
	registry ServiceRegistry
	owners   OwnershipChecker
	logger   *logging.Logger
}

// NewChatHandler creates the handler.
func NewChatHandler(registry ServiceRegistry, owners OwnershipChecker, logger *logging.Logger) *ChatHandler {
	if registry == nil {
		panic("handlers: service registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{
		registry: registry,
		owners:   owners,
		logger:   logger,
	}
}

// ChatRequest is the body of POST /bots/{botID}/chat.
type ChatRequest struct {
	Message   string          `json:"message"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// RatingRequest is the body of POST /bots/{botID}/messages/{messageID}/rating.
type RatingRequest struct {
	Rating int `json:"rating"`
}

// HistoryResponse wraps a conversation's messages.
type HistoryResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []chatbot.Message `json:"messages"`
}

// ProcessMessage handles one conversational turn.
func (h *ChatHandler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceForRequest(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	reply := svc.ProcessMessage(r.Context(), req.Message, req.SessionID, req.UserID, req.Context)
	writeJSON(w, http.StatusOK, reply)
}

// GetHistory returns a session's messages, oldest first.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceForRequest(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages, err := svc.GetConversationHistory(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to load conversation history", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []chatbot.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: messages})
}

// EndConversation closes the session's active conversation.
func (h *ChatHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	h.setConversationStatus(w, r, (*chatbot.Service).EndConversation)
}

// EscalateConversation hands the session's active conversation to a human.
func (h *ChatHandler) EscalateConversation(w http.ResponseWriter, r *http.Request) {
	h.setConversationStatus(w, r, (*chatbot.Service).EscalateConversation)
}

func (h *ChatHandler) setConversationStatus(w http.ResponseWriter, r *http.Request, update func(*chatbot.Service, context.Context, string) error) {
	svc, ok := h.serviceForRequest(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	if err := update(svc, r.Context(), sessionID); err != nil {
		h.logger.Error("failed to update conversation status", "error", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "failed to update conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RateMessage records 1..5 feedback on a bot response.
func (h *ChatHandler) RateMessage(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceForRequest(w, r)
	if !ok {
		return
	}
	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = svc.RateMessage(r.Context(), messageID, req.Rating)
	switch {
	case errors.Is(err, chatbot.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
	case errors.Is(err, chatbot.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case err != nil:
		h.logger.Error("failed to rate message", "error", err, "message_id", messageID)
		writeError(w, http.StatusInternalServerError, "failed to record rating")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// serviceForRequest parses {botID}, checks tenant ownership, and resolves
// the bot's service. It writes the error response on failure.
func (h *ChatHandler) serviceForRequest(w http.ResponseWriter, r *http.Request) (*chatbot.Service, bool) {
	botID, err := uuid.Parse(chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return nil, false
	}

	if h.owners != nil {
		orgID, ok := middleware.OrgIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing organization")
			return nil, false
		}
		owned, err := h.owners.BotInOrg(r.Context(), botID, orgID)
		if err != nil {
			h.logger.Error("failed to check bot ownership", "error", err, "bot_id", botID)
			writeError(w, http.StatusInternalServerError, "authorization unavailable")
			return nil, false
		}
		if !owned {
			// Not distinguishing "missing" from "someone else's bot".
			writeError(w, http.StatusNotFound, "bot not found")
			return nil, false
		}
	}

	svc, err := h.registry.ServiceFor(r.Context(), botID)
	switch {
	case errors.Is(err, chatbot.ErrBotNotFound):
		writeError(w, http.StatusNotFound, "bot not found")
		return nil, false
	case errors.Is(err, chatbot.ErrBotNotActive):
		writeError(w, http.StatusConflict, "bot is not active")
		return nil, false
	case err != nil:
		h.logger.Error("failed to build bot service", "error", err, "bot_id", botID)
		writeError(w, http.StatusInternalServerError, "bot unavailable")
		return nil, false
	}
	return svc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
