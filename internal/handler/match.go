package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/service"
)

type MatchHandler struct {
	conv *service.ConversationService
}

func NewMatchHandler(conv *service.ConversationService) *MatchHandler {
	return &MatchHandler{conv: conv}
}

// List: активные матчи пользователя (новые и с перепиской).
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListUnmatched отдаёт разорванные матчи, история доступна для чтения.
func (h *MatchHandler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *MatchHandler) list(w http.ResponseWriter, r *http.Request, unmatched bool) {
	list, err := h.conv.ListMatches(r.Context(), middleware.GetUserID(r.Context()), unmatched)
	if err != nil {
		writeServiceError(w, "list matches", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createMatchRequest struct {
	UserID string `json:"user_id"`
}

// Create: взаимный свайп. 201 для нового матча, 200 если пара уже в матче.
func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if !decode(w, r, &req) {
		return
	}
	m, created, err := h.conv.CreateMatch(r.Context(), middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		writeServiceError(w, "create match", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.conv.GetMatch(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get match", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MatchHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.conv.Unmatch(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "unmatch", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// MarkRead: пользователь открыл разговор.
func (h *MatchHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.MarkRead(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "mark read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

func (h *MatchHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.conv.SetTyping(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Typing); err != nil {
		writeServiceError(w, "set typing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Typing: печатает ли собеседник сейчас.
func (h *MatchHandler) Typing(w http.ResponseWriter, r *http.Request) {
	st, err := h.conv.TypingStatus(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "typing status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
