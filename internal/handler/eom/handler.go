package eom

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler exposes the annotation parser and the playback planner over HTTP.
type Handler struct {
	playback *playback.Service
	personas persona.Store
}

// New 创建EOM处理器
func New(playbackSvc *playback.Service, personas persona.Store) *Handler {
	return &Handler{playback: playbackSvc, personas: personas}
}

// RegisterRoutes 注册EOM相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/eom/parse", h.handleParse)
	r.Post("/eom/split", h.handleSplit)
	r.Post("/eom/plan", h.handlePlan)
}

type messageRequest struct {
	Message string `json:"message"`
}

// SplitResponse is the body of POST /eom/split.
type SplitResponse struct {
	CleanMessage string        `json:"cleanMessage"`
	Parts        []eom.Segment `json:"parts"`
}

// PlanRequest asks how a backend reply would be played for a persona.
type PlanRequest struct {
	PersonaID   string     `json:"personaId"`
	UserMessage string     `json:"userMessage"`
	Reply       chat.Reply `json:"reply"`
}

// PlannedPart is one part with its waits in milliseconds.
type PlannedPart struct {
	chat.MessagePart
	WaitMs  int64 `json:"waitMs"`
	AfterMs int64 `json:"afterMs"`
}

// PlanResponse is the body of POST /eom/plan.
type PlanResponse struct {
	Emotion   string        `json:"emotion"`
	Intensity int           `json:"intensity"`
	Parts     []PlannedPart `json:"parts"`
	TotalMs   int64         `json:"totalMs"`
}

func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.playback.Parser().Parse(req.Message))
}

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, SplitResponse{
		CleanMessage: eom.Clean(req.Message),
		Parts:        h.playback.Parser().SplitIntoParts(req.Message),
	})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, ok := h.personas.FindByID(req.PersonaID)
	if !ok && req.PersonaID != "" {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	turn := h.playback.BuildTurn("", p, req.Reply, req.UserMessage)
	resp := PlanResponse{
		Emotion:   turn.Emotion,
		Intensity: turn.Intensity,
		Parts:     []PlannedPart{},
	}
	for _, step := range h.playback.Plan(turn) {
		part := PlannedPart{
			MessagePart: step.Part,
			WaitMs:      step.Wait.Milliseconds(),
			AfterMs:     step.After.Milliseconds(),
		}
		resp.Parts = append(resp.Parts, part)
		resp.TotalMs += part.WaitMs + part.AfterMs
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
