package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"MiniMixLab/logger"
	"MiniMixLab/model"
	"MiniMixLab/storage"
)

// maxUploadBytes 源文件上传大小上限
const maxUploadBytes = 100 << 20 // 100MB

// UploadSourceHandler 上传一个源音频文件：
// 交给分析服务登记分析 → 存入对象存储 → 落库 → 预热分段目录。
// 任何一步失败都不产生半成品源（已传的对象会尽力清理）。
func (h *APIHandler) UploadSourceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart form or file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Missing 'audio' file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// 文件要喂给分析服务和对象存储两处，先整体读进内存
	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("[Upload] 读取上传文件失败", logger.ErrorField(err))
		http.Error(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	// 1. 分析服务登记并分析，拿到源ID和元数据
	result, err := h.analysis.Upload(r.Context(), header.Filename, bytes.NewReader(data))
	if err != nil {
		logger.Error("[Upload] 分析服务登记失败",
			logger.String("filename", header.Filename),
			logger.ErrorField(err))
		http.Error(w, "Analysis service rejected the upload", http.StatusBadGateway)
		return
	}

	// 2. 原始文件存入对象存储
	objectPath := fmt.Sprintf("sources/%s/%s", result.ID, filepath.Base(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	if err := storage.UploadObject(r.Context(), objectPath, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		logger.Error("[Upload] 对象存储写入失败",
			logger.String("sourceId", result.ID),
			logger.ErrorField(err))
		http.Error(w, "Failed to store uploaded file", http.StatusInternalServerError)
		return
	}

	// 3. 登记源曲目
	track := &model.SourceTrack{
		ID:              result.ID,
		UserID:          userID,
		DisplayName:     header.Filename,
		ObjectPath:      objectPath,
		DurationSeconds: result.DurationSeconds,
		Analysis:        result.Analysis,
		Analyzed:        result.Analysis != nil,
	}
	if err := h.sourceRepo.Create(r.Context(), track); err != nil {
		logger.Error("[Upload] 源曲目落库失败",
			logger.String("sourceId", result.ID),
			logger.ErrorField(err))
		// 落库失败时清掉已传对象，避免无主文件
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if rmErr := storage.RemoveObject(cleanupCtx, objectPath); rmErr != nil {
			logger.Warn("[Upload] 清理无主对象失败",
				logger.String("objectPath", objectPath),
				logger.ErrorField(rmErr))
		}
		http.Error(w, "Failed to register source track", http.StatusInternalServerError)
		return
	}

	// 4. 预热分段目录，失败不影响上传结果
	if _, err := h.catalog.Refresh(r.Context(), result.ID); err != nil {
		logger.Warn("[Upload] 分段目录预热失败，该源暂不可入时间线",
			logger.String("sourceId", result.ID),
			logger.ErrorField(err))
	}

	logger.Info("[Upload] 源文件上传完成",
		logger.String("sourceId", result.ID),
		logger.String("filename", header.Filename),
		logger.Int64("userId", userID),
		logger.Float64("duration", result.DurationSeconds))

	writeJSON(w, http.StatusOK, track)
}
