package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchSegmentsDropsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sourceId"); got != "src-1" {
			t.Errorf("sourceId 应为 src-1, 实际 %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sourceId": "src-1",
			"segments": []map[string]interface{}{
				{"start": 0, "end": 12.5, "label": "intro"},
				{"start": 20, "end": 20, "label": "broken"},   // 零长度
				{"start": 30, "end": 25, "label": "inverted"}, // 区间倒置
				{"start": 12.5, "end": 40, "label": "chorus", "confidence": 0.9},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	segments, err := c.FetchSegments(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("FetchSegments 出错: %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("非法分段应被丢弃, 期望2个, 实际 %d", len(segments))
	}
	if segments[0].Label != "intro" || segments[1].Label != "chorus" {
		t.Errorf("保留的分段不对: %+v", segments)
	}
	if segments[1].Confidence != 0.9 {
		t.Errorf("置信度应透传, 实际 %v", segments[1].Confidence)
	}
}

func TestUploadRequiresSourceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"durationSeconds": 180})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Upload(context.Background(), "a.mp3", strings.NewReader("data")); err == nil {
		t.Error("缺少源ID的响应应报错")
	}
}

func TestUploadParsesAnalysis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart 解析失败: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("缺少 file 字段: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":              "src-9",
			"durationSeconds": 213.4,
			"analysis":        map[string]interface{}{"bpm": 128, "key": "Am", "firstBeatOffsetSeconds": 0.12},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Upload(context.Background(), "a.mp3", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Upload 出错: %v", err)
	}
	if result.ID != "src-9" || result.DurationSeconds != 213.4 {
		t.Errorf("基础元数据不对: %+v", result)
	}
	if result.Analysis == nil || result.Analysis.BPM != 128 || result.Analysis.Key != "Am" {
		t.Errorf("分析结果不对: %+v", result.Analysis)
	}
}

func TestAutoPitchBuildsMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			SourceIDs  []string `json:"sourceIds"`
			ProjectKey string   `json:"projectKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("请求体解析失败: %v", err)
		}
		if payload.ProjectKey != "Am" || len(payload.SourceIDs) != 2 {
			t.Errorf("请求体不对: %+v", payload)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"targetKey": "Am",
			"tracks": []map[string]interface{}{
				{"sourceId": "src-a", "semitones": 3},
				{"sourceId": "src-b", "semitones": -4},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.AutoPitch(context.Background(), []string{"src-a", "src-b"}, "Am")
	if err != nil {
		t.Fatalf("AutoPitch 出错: %v", err)
	}
	if out["src-a"] != 3 || out["src-b"] != -4 {
		t.Errorf("建议映射不对: %+v", out)
	}
}

func TestAutoAlignMapsBySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tracks": []map[string]interface{}{
				{"sourceId": "src-a", "suggestedSpeed": 1.25, "suggestedOffset": 0.3},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.AutoAlign(context.Background(), []string{"src-a"}, 120)
	if err != nil {
		t.Fatalf("AutoAlign 出错: %v", err)
	}
	sug, ok := out["src-a"]
	if !ok || sug.SuggestedSpeed != 1.25 || sug.SuggestedOffset != 0.3 {
		t.Errorf("建议不对: %+v", out)
	}
}
