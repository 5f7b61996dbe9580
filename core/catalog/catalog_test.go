package catalog

import (
	"context"
	"errors"
	"testing"

	"MiniMixLab/core/analysis"
	"MiniMixLab/model"
)

type fakeFetcher struct {
	calls    int
	segments []model.Segment
	err      error
}

func (f *fakeFetcher) FetchSegments(ctx context.Context, sourceID string) ([]model.Segment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}

func TestSegmentsFetchOnce(t *testing.T) {
	fetcher := &fakeFetcher{segments: []model.Segment{
		{Label: "vocals", StartSeconds: 0, EndSeconds: 12.5},
		{Label: "drums", StartSeconds: 12.5, EndSeconds: 30},
	}}
	c := New(fetcher, nil)

	for i := 0; i < 3; i++ {
		segs, err := c.Segments(context.Background(), "src-1")
		if err != nil {
			t.Fatalf("Segments 第%d次调用出错: %v", i+1, err)
		}
		if len(segs) != 2 {
			t.Fatalf("期望2个分段, 实际 %d", len(segs))
		}
	}

	if fetcher.calls != 1 {
		t.Errorf("分段应只拉取一次, 实际拉取 %d 次", fetcher.calls)
	}
}

func TestSegmentsUnavailable(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	c := New(fetcher, nil)

	_, err := c.Segments(context.Background(), "src-1")
	if !errors.Is(err, analysis.ErrAnalysisUnavailable) {
		t.Fatalf("期望 ErrAnalysisUnavailable, 实际 %v", err)
	}

	if c.HasSegments(context.Background(), "src-1") {
		t.Error("分析不可用的源不应报告有分段")
	}

	// 失败不应被缓存，恢复后能重新拉到
	fetcher.err = nil
	fetcher.segments = []model.Segment{{Label: "pads", StartSeconds: 0, EndSeconds: 8}}
	if !c.HasSegments(context.Background(), "src-1") {
		t.Error("分析恢复后应能拉到分段")
	}
}

func TestRefreshReplaces(t *testing.T) {
	fetcher := &fakeFetcher{segments: []model.Segment{
		{Label: "vocals", StartSeconds: 0, EndSeconds: 10},
	}}
	c := New(fetcher, nil)

	if _, err := c.Segments(context.Background(), "src-1"); err != nil {
		t.Fatalf("首次拉取出错: %v", err)
	}

	// 重新分析后分段整体替换，而不是追加
	fetcher.segments = []model.Segment{
		{Label: "intro", StartSeconds: 0, EndSeconds: 4},
		{Label: "drop", StartSeconds: 4, EndSeconds: 20},
		{Label: "outro", StartSeconds: 20, EndSeconds: 28},
	}
	if _, err := c.Refresh(context.Background(), "src-1"); err != nil {
		t.Fatalf("Refresh 出错: %v", err)
	}

	segs, err := c.Segments(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("刷新后读取出错: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("期望刷新后3个分段, 实际 %d", len(segs))
	}
	if segs[0].Label != "intro" {
		t.Errorf("期望第一段为 intro, 实际 %s", segs[0].Label)
	}
}

func TestHasSegmentsEmpty(t *testing.T) {
	fetcher := &fakeFetcher{segments: nil}
	c := New(fetcher, nil)

	if c.HasSegments(context.Background(), "src-empty") {
		t.Error("零分段的源不应报告有分段")
	}
}

func TestForget(t *testing.T) {
	fetcher := &fakeFetcher{segments: []model.Segment{
		{Label: "vocals", StartSeconds: 0, EndSeconds: 10},
	}}
	c := New(fetcher, nil)

	if _, err := c.Segments(context.Background(), "src-1"); err != nil {
		t.Fatalf("首次拉取出错: %v", err)
	}
	c.Forget(context.Background(), "src-1")

	if _, err := c.Segments(context.Background(), "src-1"); err != nil {
		t.Fatalf("遗忘后重新拉取出错: %v", err)
	}
	if fetcher.calls != 2 {
		t.Errorf("遗忘后应重新回源, 期望2次拉取, 实际 %d", fetcher.calls)
	}
}
