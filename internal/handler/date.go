package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/daterequest"
	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/service"
)

type DateHandler struct {
	dates *service.DateService
}

func NewDateHandler(dates *service.DateService) *DateHandler {
	return &DateHandler{dates: dates}
}

func (h *DateHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.dates.List(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "list dates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft daterequest.Draft
	if !decode(w, r, &draft) {
		return
	}
	req, err := h.dates.Create(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), draft)
	if err != nil {
		writeServiceError(w, "create date", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type respondRequest struct {
	Status model.DateStatus `json:"status"`
}

func (h *DateHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var body respondRequest
	if !decode(w, r, &body) {
		return
	}
	req, err := h.dates.Respond(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "dateId"), body.Status)
	if err != nil {
		writeServiceError(w, "respond date", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *DateHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.dates.Cancel(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "dateId"))
	if err != nil {
		writeServiceError(w, "cancel date", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
