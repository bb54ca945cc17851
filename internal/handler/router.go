package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-companion/backend/internal/handler/chat"
	"github.com/zhouzirui/z-companion/backend/internal/handler/eom"
	"github.com/zhouzirui/z-companion/backend/internal/handler/persona"
	"github.com/zhouzirui/z-companion/backend/internal/handler/stream"
	"github.com/zhouzirui/z-companion/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-companion/backend/internal/middleware"
	personaModel "github.com/zhouzirui/z-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, conversation *playback.Conversation, playbackSvc *playback.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc, personas, conversation)
	eomHandler := eom.New(playbackSvc, personas)
	streamHandler := stream.New(conversation, chatSvc, personas)
	wsHandler := ws.NewWebSocketHandler(conversation, chatSvc, personas)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		eomHandler.RegisterRoutes(api)

		// Parts are pushed as SSE events while the turn plays.
		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				slog.Warn("stream request failed", "session_id", sessionID, "error", err)
			}
		})

		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
