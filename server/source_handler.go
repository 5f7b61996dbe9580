package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"MiniMixLab/core/analysis"
	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// GetSourcesHandler 列出当前用户的全部源曲目
func (h *APIHandler) GetSourcesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tracks, err := h.sourceRepo.ListByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("[Sources] 查询源曲目失败", logger.ErrorField(err))
		http.Error(w, "Failed to list source tracks", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": tracks})
}

// GetSegmentsHandler 返回一个源的分段目录。
// 分析服务拿不到结果时返回空列表而不是报错，前端按"无分段"展示。
func (h *APIHandler) GetSegmentsHandler(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["id"]

	src, err := h.sourceRepo.GetByID(r.Context(), sourceID)
	if err != nil {
		logger.Error("[Segments] 查询源曲目失败", logger.ErrorField(err))
		http.Error(w, "Failed to query source track", http.StatusInternalServerError)
		return
	}
	if src == nil {
		http.Error(w, "Source track not found", http.StatusNotFound)
		return
	}

	segments, err := h.catalog.Segments(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, analysis.ErrAnalysisUnavailable) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"sourceId": sourceID,
				"segments": []model.Segment{},
			})
			return
		}
		logger.Error("[Segments] 获取分段失败",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		http.Error(w, "Failed to fetch segments", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sourceId": sourceID,
		"segments": segments,
	})
}

// RefreshSegmentsHandler 强制回源分析服务刷新分段目录
func (h *APIHandler) RefreshSegmentsHandler(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["id"]

	segments, err := h.catalog.Refresh(r.Context(), sourceID)
	if err != nil {
		logger.Warn("[Segments] 分段刷新失败",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		http.Error(w, "Analysis service unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sourceId": sourceID,
		"segments": segments,
	})
}

// DeleteSourceHandler 删除一个源曲目及其缓存的分段
func (h *APIHandler) DeleteSourceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sourceID := mux.Vars(r)["id"]
	if err := h.sourceRepo.Delete(r.Context(), sourceID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Source track not found", http.StatusNotFound)
			return
		}
		logger.Error("[Sources] 删除源曲目失败",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		http.Error(w, "Failed to delete source track", http.StatusInternalServerError)
		return
	}

	h.catalog.Forget(r.Context(), sourceID)

	logger.Info("[Sources] 源曲目已删除",
		logger.String("sourceId", sourceID),
		logger.Int64("userId", userID))
	w.WriteHeader(http.StatusNoContent)
}

// PreviewHandler 代理分析服务的切片试听流。
// 试听是渲染的轻量预演：同一段参数，单片段，直接回流不落任务。
func (h *APIHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sourceID := q.Get("sourceId")
	if sourceID == "" {
		http.Error(w, "sourceId is required", http.StatusBadRequest)
		return
	}

	start, err := strconv.ParseFloat(q.Get("start"), 64)
	if err != nil {
		http.Error(w, "Invalid 'start' parameter", http.StatusBadRequest)
		return
	}
	end, err := strconv.ParseFloat(q.Get("end"), 64)
	if err != nil || end <= start {
		http.Error(w, "Invalid 'end' parameter", http.StatusBadRequest)
		return
	}

	speed := 1.0
	if v := q.Get("speed"); v != "" {
		if speed, err = strconv.ParseFloat(v, 64); err != nil || speed <= 0 {
			http.Error(w, "Invalid 'speed' parameter", http.StatusBadRequest)
			return
		}
	}

	pitch := 0
	if v := q.Get("pitch"); v != "" {
		if pitch, err = strconv.Atoi(v); err != nil {
			http.Error(w, "Invalid 'pitch' parameter", http.StatusBadRequest)
			return
		}
	}

	preset := model.PresetDefault
	if v := q.Get("preset"); v != "" {
		preset = model.Preset(v)
		if !model.ValidPreset(preset) {
			http.Error(w, "Invalid 'preset' parameter", http.StatusBadRequest)
			return
		}
	}

	stream, contentType, err := h.analysis.PreviewSlice(r.Context(), sourceID, start, end, speed, pitch, preset)
	if err != nil {
		logger.Warn("[Preview] 试听切片获取失败",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		http.Error(w, "Preview unavailable", http.StatusBadGateway)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, stream); err != nil {
		logger.Debug("[Preview] 试听流中断", logger.ErrorField(err))
	}
}
