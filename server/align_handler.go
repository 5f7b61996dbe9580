package server

import (
	"encoding/json"
	"net/http"

	"MiniMixLab/core/align"
	"MiniMixLab/logger"

	"github.com/gorilla/mux"
)

// AlignTempoRequest 速度对齐请求体
type AlignTempoRequest struct {
	Quantize bool `json:"quantize"`
}

// AlignTempoHandler 触发速度对齐：为时间线全部片段计算对齐到
// 工程bpm的变速系数，可选地把片段时长量化到整拍。
// 操作是幂等的，重复触发不会累积漂移。
func (h *APIHandler) AlignTempoHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	var req AlignTempoRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	applied, err := h.planner.LineUpTempo(r.Context(), sess, align.TempoOptions{Quantize: req.Quantize})
	if err != nil {
		logger.Error("[Align] 速度对齐失败",
			logger.String("sessionId", sess.ID),
			logger.ErrorField(err))
		http.Error(w, "Tempo alignment failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied": applied,
		"pieces":  sess.Pieces(),
	})
}

// AlignPitchHandler 触发移调匹配：向分析服务请求每个源对齐
// 工程调性的半音建议并写回片段。没有建议的源显式归零。
func (h *APIHandler) AlignPitchHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	if err := h.planner.MatchPitch(r.Context(), sess); err != nil {
		logger.Warn("[Align] 移调匹配失败",
			logger.String("sessionId", sess.ID),
			logger.ErrorField(err))
		http.Error(w, "Pitch matching failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pieces": sess.Pieces(),
	})
}
