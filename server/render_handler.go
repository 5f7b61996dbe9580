package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"MiniMixLab/core/render"
	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/gorilla/mux"
)

// 渲染选项默认值
const (
	defaultCrossfadeMs = 120
	defaultBeatsPerBar = 4
)

// RenderRequestBody 触发渲染的请求体，缺省字段取默认值
type RenderRequestBody struct {
	CrossfadeMs *int `json:"crossfadeMs,omitempty"`
	BarAware    bool `json:"barAware"`
	BeatsPerBar *int `json:"beatsPerBar,omitempty"`
	SnapToBars  bool `json:"snapToBars"`
	HQPitch     bool `json:"hqPitch"`
}

// StartRenderHandler 把当前时间线提交渲染。
// 再次提交会放弃上一个任务的轮询（远端任务继续跑完，只是无人观测）。
func (h *APIHandler) StartRenderHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	var body RenderRequestBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	opts := model.MixOptions{
		CrossfadeMs: defaultCrossfadeMs,
		BarAware:    body.BarAware,
		BeatsPerBar: defaultBeatsPerBar,
		SnapToBars:  body.SnapToBars,
		HQPitch:     body.HQPitch,
	}
	if body.CrossfadeMs != nil && *body.CrossfadeMs >= 0 {
		opts.CrossfadeMs = *body.CrossfadeMs
	}
	if body.BeatsPerBar != nil && *body.BeatsPerBar >= 1 {
		opts.BeatsPerBar = *body.BeatsPerBar
	}

	pieces, project := sess.Arrangement()
	if len(pieces) == 0 {
		http.Error(w, "Timeline is empty, nothing to render", http.StatusConflict)
		return
	}

	req := render.BuildRenderRequest(pieces, project, opts)

	jobID, err := sess.Renderer().StartRender(r.Context(), req, nil)
	if err != nil {
		if errors.Is(err, render.ErrSubmitFailed) {
			http.Error(w, "Render service rejected the submission", http.StatusBadGateway)
			return
		}
		logger.Error("[Render] 渲染启动失败",
			logger.String("sessionId", sess.ID),
			logger.ErrorField(err))
		http.Error(w, "Failed to start render", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId": jobID,
		"state": sess.Renderer().State(),
	})
}

// GetRenderStatusHandler 查询会话当前渲染任务的观测状态
func (h *APIHandler) GetRenderStatusHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	resp := map[string]interface{}{
		"state": sess.Renderer().State(),
	}
	if job, ok := sess.Renderer().CurrentJob(); ok {
		resp["job"] = job
	}

	writeJSON(w, http.StatusOK, resp)
}
