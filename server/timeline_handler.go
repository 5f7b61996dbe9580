package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"MiniMixLab/core/timeline"
	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/gorilla/mux"
)

// GetTimelineHandler 返回会话时间线的当前快照
func (h *APIHandler) GetTimelineHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sess.ID,
		"pieces":    sess.Pieces(),
	})
}

// AddPieceRequest 添加片段的请求体。
// 二选一：segmentIndex 引用分段目录里的一条；或者直接给自定义区间。
type AddPieceRequest struct {
	SourceID     string   `json:"sourceId"`
	SegmentIndex *int     `json:"segmentIndex,omitempty"`
	StartSeconds *float64 `json:"startSeconds,omitempty"`
	EndSeconds   *float64 `json:"endSeconds,omitempty"`
	Label        string   `json:"label,omitempty"`
}

// AddPieceHandler 向时间线末尾追加一个片段。
// 没有可用分段的源不能入时间线（分析不可用时的降级约定）。
func (h *APIHandler) AddPieceHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	var req AddPieceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceID == "" {
		http.Error(w, "sourceId is required", http.StatusBadRequest)
		return
	}

	src, err := h.sourceRepo.GetByID(r.Context(), req.SourceID)
	if err != nil {
		logger.Error("[Timeline] 查询源曲目失败", logger.ErrorField(err))
		http.Error(w, "Failed to query source track", http.StatusInternalServerError)
		return
	}
	if src == nil {
		http.Error(w, "Source track not found", http.StatusNotFound)
		return
	}

	segments, err := h.catalog.Segments(r.Context(), req.SourceID)
	if err != nil || len(segments) == 0 {
		http.Error(w, "Source has no segments and cannot be arranged", http.StatusConflict)
		return
	}

	var seg model.Segment
	switch {
	case req.SegmentIndex != nil:
		idx := *req.SegmentIndex
		if idx < 0 || idx >= len(segments) {
			http.Error(w, "segmentIndex out of range", http.StatusBadRequest)
			return
		}
		seg = segments[idx]
	case req.StartSeconds != nil && req.EndSeconds != nil:
		seg = model.Segment{
			Label:        req.Label,
			StartSeconds: *req.StartSeconds,
			EndSeconds:   *req.EndSeconds,
		}
	default:
		http.Error(w, "Either segmentIndex or startSeconds/endSeconds is required", http.StatusBadRequest)
		return
	}

	piece, err := sess.AddPiece(src, seg)
	if err != nil {
		if errors.Is(err, timeline.ErrInvalidSegment) {
			http.Error(w, "Invalid segment range", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to add piece", http.StatusInternalServerError)
		return
	}

	logger.Info("[Timeline] 片段已添加",
		logger.String("sessionId", sess.ID),
		logger.String("pieceId", piece.ID),
		logger.String("sourceId", req.SourceID),
		logger.String("label", piece.Label))

	writeJSON(w, http.StatusCreated, piece)
}

// RemovePieceHandler 按位置移除片段。
// 下标越界按约定是无操作，同样返回 204。
func (h *APIHandler) RemovePieceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess := h.sessionForRequest(w, r, vars["id"])
	if sess == nil {
		return
	}

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		http.Error(w, "Invalid piece index", http.StatusBadRequest)
		return
	}

	sess.RemovePiece(index)
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePieceHandler 部分更新指定位置的片段。
// 校验失败时整个更新被拒绝，片段保持原样。
func (h *APIHandler) UpdatePieceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess := h.sessionForRequest(w, r, vars["id"])
	if sess == nil {
		return
	}

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		http.Error(w, "Invalid piece index", http.StatusBadRequest)
		return
	}

	var upd model.PieceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if upd.Empty() {
		http.Error(w, "No fields to update", http.StatusBadRequest)
		return
	}

	piece, err := sess.UpdatePiece(index, upd)
	if err != nil {
		http.Error(w, "Piece update rejected: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, piece)
}

// ReorderRequest 重排请求体
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ReorderHandler 把片段从 from 位置移动到 to 位置
func (h *APIHandler) ReorderHandler(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionForRequest(w, r, mux.Vars(r)["id"])
	if sess == nil {
		return
	}

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess.Reorder(req.From, req.To)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pieces": sess.Pieces(),
	})
}
