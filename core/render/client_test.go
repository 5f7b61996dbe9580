package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"MiniMixLab/model"
)

func TestSubmitAsyncJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mix" || r.Method != http.MethodPost {
			t.Errorf("意外的请求: %s %s", r.Method, r.URL.Path)
		}
		var req model.RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("请求体解析失败: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"jobId": "job-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Submit(context.Background(), model.RenderRequest{ProjectBPM: 120})
	if err != nil {
		t.Fatalf("Submit 出错: %v", err)
	}
	if result.JobID != "job-42" || result.URL != "" {
		t.Errorf("结果不对: %+v", result)
	}
}

func TestSubmitDirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/mix.mp3"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Submit(context.Background(), model.RenderRequest{})
	if err != nil {
		t.Fatalf("Submit 出错: %v", err)
	}
	if result.URL != "https://cdn.example/mix.mp3" || result.JobID != "" {
		t.Errorf("结果不对: %+v", result)
	}
}

func TestSubmitFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Submit(context.Background(), model.RenderRequest{}); !errors.Is(err, ErrSubmitFailed) {
		t.Errorf("非200响应应返回 ErrSubmitFailed, 实际 %v", err)
	}

	// 连不上的地址
	c2 := NewClient("http://127.0.0.1:1")
	if _, err := c2.Submit(context.Background(), model.RenderRequest{}); !errors.Is(err, ErrSubmitFailed) {
		t.Errorf("传输失败应返回 ErrSubmitFailed, 实际 %v", err)
	}

	// 既无 jobId 也无 url
	srv3 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv3.Close()
	c3 := NewClient(srv3.URL)
	if _, err := c3.Submit(context.Background(), model.RenderRequest{}); !errors.Is(err, ErrSubmitFailed) {
		t.Errorf("空响应应返回 ErrSubmitFailed, 实际 %v", err)
	}
}

func TestJobStatusMapping(t *testing.T) {
	responses := map[string]map[string]interface{}{
		"queued":  {"status": "queued", "percent": 0},
		"running": {"status": "running", "percent": 55, "message": "mixing"},
		"done":    {"status": "done", "percent": 97, "result": "https://cdn.example/out.mp3"},
		"failed":  {"status": "error", "result": "ffmpeg exited with code 1"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Path[len("/api/job/"):]
		json.NewEncoder(w).Encode(responses[jobID])
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	job, err := c.JobStatus(context.Background(), "running")
	if err != nil {
		t.Fatalf("JobStatus 出错: %v", err)
	}
	if job.Status != model.JobRunning || job.ProgressPercent != 55 || job.Message != "mixing" {
		t.Errorf("running 映射不对: %+v", job)
	}

	// done: 进度强制补到100，result 即产物地址
	job, err = c.JobStatus(context.Background(), "done")
	if err != nil {
		t.Fatalf("JobStatus 出错: %v", err)
	}
	if job.Status != model.JobDone || job.ProgressPercent != 100 || job.ResultURL != "https://cdn.example/out.mp3" {
		t.Errorf("done 映射不对: %+v", job)
	}

	// error: 后端错误信息原样透传
	job, err = c.JobStatus(context.Background(), "failed")
	if err != nil {
		t.Fatalf("JobStatus 出错: %v", err)
	}
	if job.Status != model.JobError || job.ErrorDetail != "ffmpeg exited with code 1" {
		t.Errorf("error 映射不对: %+v", job)
	}
}

func TestJobStatusUnknownState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "paused"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.JobStatus(context.Background(), "job-1"); err == nil {
		t.Error("未知状态应返回错误")
	}
}
