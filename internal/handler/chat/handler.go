package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	personaStore persona.Store
	conversation *playback.Conversation
	logger       *slog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, personaStore persona.Store, conversation *playback.Conversation) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		personaStore: personaStore,
		conversation: conversation,
		logger:       slog.Default().With("component", "chat-handler"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Get("/transcript", h.handleGetTranscript)
		r.Delete("/transcript", h.handleResetTranscript)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/stop", h.handleStop)
	})
}

// TranscriptResponse is the body of GET /session/{id}/transcript.
type TranscriptResponse struct {
	SessionID string                 `json:"sessionId"`
	Composing bool                   `json:"composing"`
	Entries   []chat.TranscriptEntry `json:"entries"`
}

// SendResponse is the body of POST /session/{id}/messages.
type SendResponse struct {
	User  chat.TranscriptEntry `json:"user"`
	Parts int                  `json:"parts"`
	Meta  chat.ReplyMeta       `json:"meta"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	if _, ok := h.personaStore.FindByID(payload.PersonaID); !ok {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.conversation.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	entries, composing, err := h.conversation.Transcript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, TranscriptResponse{
		SessionID: sessionID,
		Composing: composing,
		Entries:   entries,
	})
}

func (h *Handler) handleResetTranscript(w http.ResponseWriter, r *http.Request) {
	if err := h.conversation.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage records the user message and plays the reply into the
// transcript in the background; clients follow it through the transcript.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.conversation.Prepare(r.Context(), chi.URLParam(r, "sessionID"), payload.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.conversation.Play(ctx, exchange); err != nil && !interrupted(err) {
			h.logger.Warn("background playback failed", "session_id", exchange.Turn.SessionID, "error", err)
		}
	}()

	utils.RespondJSON(w, http.StatusAccepted, SendResponse{
		User:  exchange.User,
		Parts: len(exchange.Turn.Parts),
		Meta:  exchange.Reply.Meta,
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	h.conversation.Stop(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func interrupted(err error) bool {
	return errors.Is(err, sequencer.ErrSuperseded) || errors.Is(err, sequencer.ErrStopped)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, playback.ErrEmptyMessage), errors.Is(err, chatService.ErrPersonaRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
