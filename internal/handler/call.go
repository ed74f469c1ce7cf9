package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/service"
)

// CallHandler ведёт сигнализацию WebRTC через бэкенд: offer/answer/кандидаты и статусы звонка.
type CallHandler struct {
	calls *service.CallService
}

func NewCallHandler(calls *service.CallService) *CallHandler {
	return &CallHandler{calls: calls}
}

func (h *CallHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCallInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.calls.Create(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		writeServiceError(w, "create call", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CallHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	list, err := h.calls.Incoming(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "incoming calls", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.calls.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get call", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type answerRequest struct {
	Answer *model.SessionDescription `json:"answer"`
}

func (h *CallHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.calls.Answer(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		writeServiceError(w, "answer call", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type statusRequest struct {
	Status model.CallStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// SetStatus: ongoing / declined / missed / ended. Повторное завершение отдаёт 200 с текущей записью.
func (h *CallHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.calls.SetStatus(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Status, req.Reason)
	if err != nil {
		writeServiceError(w, "call status", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	c, err := h.calls.End(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, "end call", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type candidateRequest struct {
	Candidate json.RawMessage `json:"candidate"`
}

func (h *CallHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if !decode(w, r, &req) {
		return
	}
	ic, err := h.calls.AddCandidate(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Candidate)
	if err != nil {
		writeServiceError(w, "add candidate", err)
		return
	}
	writeJSON(w, http.StatusCreated, ic)
}

// Candidates: кандидаты второй стороны (добавленные не текущим пользователем).
func (h *CallHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	list, err := h.calls.Candidates(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "list candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
