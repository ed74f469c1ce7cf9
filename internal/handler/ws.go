package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/ws"
)

// WSHandler отдаёт живую подписку: события матчей, сообщений, звонков и свиданий.
type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins []string
	upgrader       websocket.Upgrader
	// base: контекст жизни сервера; соединение не привязано к контексту запроса, он завершается после upgrade.
	base context.Context
}

// NewWSHandler: allowedOrigins задаются как в CORS (через запятую или "*").
func NewWSHandler(base context.Context, hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub, base: base}
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			h.allowedOrigins = append(h.allowedOrigins, o)
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", userID, err)
		return
	}
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(h.base)
	h.hub.Register(client)
}
