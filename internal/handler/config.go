package handler

import (
	"net/http"

	"github.com/frinder/internal/config"
)

// ConfigHandler отдаёт клиенту публичные параметры (без авторизации).
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type pushConfigResponse struct {
	Enabled        bool   `json:"enabled"`
	VAPIDPublicKey string `json:"vapid_public_key,omitempty"`
}

// callConfigResponse совпадает с client.CallConfig.
type callConfigResponse struct {
	ICEServers       []config.IceServer `json:"ice_servers"`
	TypingTTLSeconds int                `json:"typing_ttl_seconds"`
}

// GetPushConfig: VAPID-ключ отдаётся, только если настроен push-сервис.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, _ *http.Request) {
	resp := pushConfigResponse{}
	if h.cfg.PushServiceURL != "" && h.cfg.PushVAPIDPublicKey != "" {
		resp = pushConfigResponse{Enabled: true, VAPIDPublicKey: h.cfg.PushVAPIDPublicKey}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCallConfig: ICE-серверы для RTCPeerConnection и TTL флага «печатает».
func (h *ConfigHandler) GetCallConfig(w http.ResponseWriter, _ *http.Request) {
	servers := h.cfg.CallICEServers
	if servers == nil {
		servers = []config.IceServer{}
	}
	writeJSON(w, http.StatusOK, callConfigResponse{
		ICEServers:       servers,
		TypingTTLSeconds: int(h.cfg.TypingTTL.Seconds()),
	})
}
