package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/service"
)

type MessageHandler struct {
	conv *service.ConversationService
}

func NewMessageHandler(conv *service.ConversationService) *MessageHandler {
	return &MessageHandler{conv: conv}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.conv.ListMessages(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var in service.SendInput
	if !decode(w, r, &in) {
		return
	}
	msg, err := h.conv.SendMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type editMessageRequest struct {
	Text string `json:"text"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.conv.EditMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "messageId"), req.Text)
	if err != nil {
		writeServiceError(w, "edit message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Delete: удаление для всех; повторный вызов отдаёт ту же заглушку.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.conv.DeleteMessage(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		writeServiceError(w, "delete message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
