package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/service"
)

type GroupHandler struct {
	groups *service.GroupService
}

func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

func (h *GroupHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.groups.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) Search(w http.ResponseWriter, r *http.Request) {
	list, err := h.groups.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "search groups", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.GroupInput
	if !decode(w, r, &in) {
		return
	}
	g, err := h.groups.Create(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		writeServiceError(w, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Join(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "join group", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Approve(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Approve(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "memberId"))
	if err != nil {
		writeServiceError(w, "approve member", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Reject(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Reject(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "memberId"))
	if err != nil {
		writeServiceError(w, "reject member", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Leave(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "leave group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Messages(w http.ResponseWriter, r *http.Request) {
	list, err := h.groups.ListMessages(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, "group messages", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) Send(w http.ResponseWriter, r *http.Request) {
	var in service.SendInput
	if !decode(w, r, &in) {
		return
	}
	msg, err := h.groups.SendMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, "group send", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
