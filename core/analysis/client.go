// Package analysis 封装外部音频分析服务的HTTP客户端。
// 分析服务负责节拍/调性检测、分段识别、对齐与移调建议以及切片试听，
// 引擎只依赖这些请求/响应形状，不关心其内部实现。
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"MiniMixLab/logger"
	"MiniMixLab/model"
)

// ErrAnalysisUnavailable 分析服务不可用或未能给出结果。
// 调用方应就地降级（比如"该源没有分段"），不影响会话其余部分。
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// Client 分析服务API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建新的分析服务客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// UploadResult 上传并分析一个源文件的结果
type UploadResult struct {
	ID              string               `json:"id"`
	DurationSeconds float64              `json:"durationSeconds"`
	Analysis        *model.TrackAnalysis `json:"analysis,omitempty"`
}

// Upload 把源文件交给分析服务登记并分析。
// 传输失败或非200响应都算上传失败，不会产生半成品状态。
func (c *Client) Upload(ctx context.Context, filename string, data io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("创建multipart表单失败: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("写入文件内容失败: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("关闭multipart表单失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("上传请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("分析服务返回错误状态码: %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析上传响应失败: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("分析服务未返回源ID")
	}

	logger.Info("源文件上传分析完成",
		logger.String("sourceId", result.ID),
		logger.Float64("duration", result.DurationSeconds),
		logger.Bool("analyzed", result.Analysis != nil))

	return &result, nil
}

// FetchSegments 拉取一个源曲目的分段列表。
// 分析失败时返回错误，调用方降级为"无分段"而不是让会话崩掉。
func (c *Client) FetchSegments(ctx context.Context, sourceID string) ([]model.Segment, error) {
	u := fmt.Sprintf("%s/api/segment?sourceId=%s", c.baseURL, url.QueryEscape(sourceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("分段请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("分析服务返回错误状态码: %d", resp.StatusCode)
	}

	var result struct {
		SourceID string `json:"sourceId"`
		Segments []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence,omitempty"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析分段响应失败: %w", err)
	}

	segments := make([]model.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		seg := model.Segment{
			Label:        s.Label,
			StartSeconds: s.Start,
			EndSeconds:   s.End,
			Confidence:   s.Confidence,
		}
		// 丢弃非法区间，避免污染目录
		if !seg.Valid() {
			logger.Warn("分析服务返回非法分段，已丢弃",
				logger.String("sourceId", sourceID),
				logger.String("label", s.Label),
				logger.Float64("start", s.Start),
				logger.Float64("end", s.End))
			continue
		}
		segments = append(segments, seg)
	}

	return segments, nil
}

// AlignSuggestion 对齐服务给出的单源建议
type AlignSuggestion struct {
	SourceID        string  `json:"sourceId"`
	SuggestedSpeed  float64 `json:"suggestedSpeed"`
	SuggestedOffset float64 `json:"suggestedOffset"`
}

// AutoAlign 请求按目标bpm给出每个源的变速建议。
// 用于源曲目缺少bpm分析时的兜底。
func (c *Client) AutoAlign(ctx context.Context, sourceIDs []string, targetBPM float64) (map[string]AlignSuggestion, error) {
	payload := struct {
		SourceIDs []string `json:"sourceIds"`
		TargetBPM float64  `json:"targetBpm"`
	}{SourceIDs: sourceIDs, TargetBPM: targetBPM}

	var result struct {
		Tracks []AlignSuggestion `json:"tracks"`
	}
	if err := c.postJSON(ctx, "/api/auto_align", payload, &result); err != nil {
		return nil, err
	}

	out := make(map[string]AlignSuggestion, len(result.Tracks))
	for _, tr := range result.Tracks {
		out[tr.SourceID] = tr
	}
	return out, nil
}

// AutoPitch 请求按工程调性给出每个源的移调建议（半音数）。
// 响应中缺席的源没有建议，调用方应将其重置为0。
func (c *Client) AutoPitch(ctx context.Context, sourceIDs []string, projectKey string) (map[string]int, error) {
	payload := struct {
		SourceIDs  []string `json:"sourceIds"`
		ProjectKey string   `json:"projectKey"`
	}{SourceIDs: sourceIDs, ProjectKey: projectKey}

	var result struct {
		TargetKey string `json:"targetKey"`
		Tracks    []struct {
			SourceID  string `json:"sourceId"`
			Semitones int    `json:"semitones"`
		} `json:"tracks"`
	}
	if err := c.postJSON(ctx, "/api/auto_pitch", payload, &result); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(result.Tracks))
	for _, tr := range result.Tracks {
		out[tr.SourceID] = tr.Semitones
	}

	logger.Debug("移调建议获取成功",
		logger.String("targetKey", result.TargetKey),
		logger.Int("tracks", len(out)))

	return out, nil
}

// PreviewSlice 以流的形式拉取一段切片试听音频。
// 调用方负责关闭返回的 ReadCloser。
func (c *Client) PreviewSlice(ctx context.Context, sourceID string, start, end, speed float64, pitch int, preset model.Preset) (io.ReadCloser, string, error) {
	q := url.Values{}
	q.Set("sourceId", sourceID)
	q.Set("start", strconv.FormatFloat(start, 'f', -1, 64))
	q.Set("end", strconv.FormatFloat(end, 'f', -1, 64))
	q.Set("speed", strconv.FormatFloat(speed, 'f', -1, 64))
	q.Set("pitch", strconv.Itoa(pitch))
	q.Set("preset", string(preset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/preview?"+q.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("试听请求失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("分析服务返回错误状态码: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return resp.Body, contentType, nil
}

// postJSON 发送JSON请求并解析JSON响应
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("分析服务返回错误状态码: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
