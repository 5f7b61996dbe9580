package server

import (
	"net/http"

	"MiniMixLab/core/auth"
	"MiniMixLab/core/progress"
	"MiniMixLab/logger"

	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ProgressWSHandler 建立渲染进度的 WebSocket 订阅。
// 连接按会话订阅，协调器的每次进度变化都会推到这里。
// Token 经查询参数传入（浏览器 WebSocket 不能带自定义头）。
func (h *APIHandler) ProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	claims, err := auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if sess.UserID != claims.UserID {
		http.Error(w, "Session belongs to another user", http.StatusForbidden)
		return
	}

	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Progress] WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &progress.Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		SessionID: sessionID,
	}

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
