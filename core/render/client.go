// Package render 负责把时间线变成渲染请求，并驱动异步渲染任务的生命周期。
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"MiniMixLab/model"
)

// ErrSubmitFailed 提交阶段的传输失败：任务未创建，重试（如有）交给传输层
var ErrSubmitFailed = errors.New("render submit failed")

// Client 渲染服务API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建新的渲染服务客户端
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

// SubmitResult 提交渲染的结果。
// 异步后端返回 JobID；同步直出的后端直接返回产物 URL。
type SubmitResult struct {
	JobID string `json:"jobId,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Submit 提交渲染请求。单次调用，传输失败立即返回 ErrSubmitFailed，
// 不产生任何任务。
func (c *Client) Submit(ctx context.Context, req model.RenderRequest) (*SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化请求失败: %v", ErrSubmitFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/mix", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: 创建请求失败: %v", ErrSubmitFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: 渲染服务返回状态码 %d", ErrSubmitFailed, resp.StatusCode)
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", ErrSubmitFailed, err)
	}
	if result.JobID == "" && result.URL == "" {
		return nil, fmt.Errorf("%w: 响应中既无 jobId 也无 url", ErrSubmitFailed)
	}

	return &result, nil
}

// JobStatus 查询渲染任务状态。
// 终态只能由这里的读取确立，推送消息不算数。
func (c *Client) JobStatus(ctx context.Context, jobID string) (*model.RenderJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/job/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("任务状态请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("渲染服务返回状态码: %d", resp.StatusCode)
	}

	var result struct {
		Status  string  `json:"status"`
		Percent float64 `json:"percent"`
		Message string  `json:"message,omitempty"`
		Result  string  `json:"result,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析任务状态失败: %w", err)
	}

	job := &model.RenderJob{
		ID:              jobID,
		Status:          model.JobStatus(result.Status),
		ProgressPercent: result.Percent,
		Message:         result.Message,
	}
	switch job.Status {
	case model.JobDone:
		job.ResultURL = result.Result
		job.ProgressPercent = 100
	case model.JobError:
		// 后端错误信息原样透传，引擎不做解释也不重试
		job.ErrorDetail = result.Result
		if job.ErrorDetail == "" {
			job.ErrorDetail = result.Message
		}
	case model.JobQueued, model.JobRunning:
		// 进行中
	default:
		return nil, fmt.Errorf("渲染服务返回未知任务状态: %q", result.Status)
	}

	return job, nil
}
