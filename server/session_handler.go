package server

import (
	"encoding/json"
	"net/http"

	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/gorilla/mux"
)

// CreateSessionHandler 创建一个新的编排会话
func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sess := h.sessions.Create(userID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sess.ID,
		"project":   sess.Project(),
		"createdAt": sess.CreatedAt,
	})
}

// DestroySessionHandler 销毁会话并停掉其在途渲染的轮询
func (h *APIHandler) DestroySessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if h.sessionForRequest(w, r, sessionID) == nil {
		return
	}

	h.sessions.Destroy(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// GetProjectHandler 返回会话的工程设置
func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	writeJSON(w, http.StatusOK, sess.Project())
}

// PutProjectHandler 更新工程的目标节奏和调性。
// 工程设置改变不自动重算对齐，由前端决定何时重新触发。
func (h *APIHandler) PutProjectHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	var project model.Project
	if err := json.NewDecoder(r.Body).Decode(&project); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !model.ValidProject(project) {
		http.Error(w, "Invalid project settings: bpm must be > 0 and key must be a valid pitch class", http.StatusBadRequest)
		return
	}

	sess.SetProject(project)

	logger.Info("[Project] 工程设置已更新",
		logger.String("sessionId", sess.ID),
		logger.Float64("bpm", project.BPM),
		logger.String("key", project.Key))

	writeJSON(w, http.StatusOK, project)
}
