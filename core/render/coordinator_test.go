package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"MiniMixLab/model"
)

// fakeJobService 按脚本逐次返回任务状态，最后一条状态一直重复
type fakeJobService struct {
	mu        sync.Mutex
	submitErr error
	submits   []model.RenderRequest
	jobIDs    []string
	url       string
	statuses  []model.RenderJob
	statusIdx int
}

func (f *fakeJobService) Submit(ctx context.Context, req model.RenderRequest) (*SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits = append(f.submits, req)

	if f.url != "" {
		return &SubmitResult{URL: f.url}, nil
	}

	jobID := f.jobIDs[0]
	if len(f.jobIDs) > 1 {
		f.jobIDs = f.jobIDs[1:]
	}
	return &SubmitResult{JobID: jobID}, nil
}

func (f *fakeJobService) JobStatus(ctx context.Context, jobID string) (*model.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	status.ID = jobID
	return &status, nil
}

// collectUpdates 收集 notify 回调的进度，供断言
type collectUpdates struct {
	mu   sync.Mutex
	jobs []model.RenderJob
}

func (c *collectUpdates) notify(job model.RenderJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

func (c *collectUpdates) last() (model.RenderJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.jobs) == 0 {
		return model.RenderJob{}, false
	}
	return c.jobs[len(c.jobs)-1], true
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待状态 %s 超时, 当前 %s", want, c.State())
}

func TestStartRenderDirectURL(t *testing.T) {
	svc := &fakeJobService{url: "https://cdn.example/mix.mp3"}
	updates := &collectUpdates{}
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, updates.notify)

	jobID, err := c.StartRender(context.Background(), model.RenderRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRender 出错: %v", err)
	}

	if !strings.HasPrefix(jobID, "direct-") {
		t.Errorf("同步直出任务ID应带 direct- 前缀, 实际 %s", jobID)
	}
	if c.State() != StateDone {
		t.Errorf("同步直出应立即进入 Done, 实际 %s", c.State())
	}

	job, ok := c.CurrentJob()
	if !ok || job.Status != model.JobDone || job.ResultURL != "https://cdn.example/mix.mp3" {
		t.Errorf("任务快照不对: %+v", job)
	}
	if last, ok := updates.last(); !ok || last.Status != model.JobDone {
		t.Error("同步直出也应推一次最终进度")
	}
}

func TestStartRenderSubmitFailure(t *testing.T) {
	svc := &fakeJobService{submitErr: ErrSubmitFailed}
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, nil)

	_, err := c.StartRender(context.Background(), model.RenderRequest{}, nil)
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("期望 ErrSubmitFailed, 实际 %v", err)
	}
	if c.State() != StateError {
		t.Errorf("提交失败应进入 Error, 实际 %s", c.State())
	}
	if _, ok := c.CurrentJob(); ok {
		t.Error("提交失败不应产生任务")
	}
}

func TestPollUntilDone(t *testing.T) {
	svc := &fakeJobService{
		jobIDs: []string{"job-1"},
		statuses: []model.RenderJob{
			{Status: model.JobQueued},
			{Status: model.JobRunning, ProgressPercent: 40},
			{Status: model.JobDone, ResultURL: "https://cdn.example/out.mp3", ProgressPercent: 100},
		},
	}
	updates := &collectUpdates{}
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, updates.notify)

	jobID, err := c.StartRender(context.Background(), model.RenderRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRender 出错: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("期望 job-1, 实际 %s", jobID)
	}

	waitForState(t, c, StateDone)
	c.Stop()

	job, ok := c.CurrentJob()
	if !ok || job.Status != model.JobDone || job.ResultURL != "https://cdn.example/out.mp3" {
		t.Errorf("完成后的任务快照不对: %+v", job)
	}
}

func TestPollUntilError(t *testing.T) {
	svc := &fakeJobService{
		jobIDs: []string{"job-1"},
		statuses: []model.RenderJob{
			{Status: model.JobRunning, ProgressPercent: 10},
			{Status: model.JobError, ErrorDetail: "decode failed: bad frame at 00:12"},
		},
	}
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, nil)

	if _, err := c.StartRender(context.Background(), model.RenderRequest{}, nil); err != nil {
		t.Fatalf("StartRender 出错: %v", err)
	}

	waitForState(t, c, StateError)
	c.Stop()

	// 后端错误信息原样保留
	job, _ := c.CurrentJob()
	if job.ErrorDetail != "decode failed: bad frame at 00:12" {
		t.Errorf("错误信息应原样透传, 实际 %q", job.ErrorDetail)
	}
}

func TestPushProgressNeverTerminates(t *testing.T) {
	// 状态读取永远说 running：推送说到100%也不能算完成
	svc := &fakeJobService{
		jobIDs:   []string{"job-1"},
		statuses: []model.RenderJob{{Status: model.JobRunning, ProgressPercent: 50}},
	}
	push := make(chan model.ProgressEvent, 4)
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, nil)

	if _, err := c.StartRender(context.Background(), model.RenderRequest{}, push); err != nil {
		t.Fatalf("StartRender 出错: %v", err)
	}

	push <- model.ProgressEvent{Percent: 100, Message: "almost there"}
	time.Sleep(80 * time.Millisecond)

	if c.State() != StatePolling {
		t.Errorf("推送进度不应确立终态, 实际状态 %s", c.State())
	}
	job, _ := c.CurrentJob()
	if job.Status.Terminal() {
		t.Errorf("任务不应进入终态: %+v", job)
	}

	c.Stop()
}

func TestResubmitAbandonsPreviousPoll(t *testing.T) {
	// 第一个任务永远 running，轮询只能靠放弃结束
	svc := &fakeJobService{
		jobIDs:   []string{"job-1", "job-2"},
		statuses: []model.RenderJob{{Status: model.JobRunning, ProgressPercent: 30}},
	}
	c := NewCoordinator("sess-1", svc, 10*time.Millisecond, nil)

	first, err := c.StartRender(context.Background(), model.RenderRequest{}, nil)
	if err != nil {
		t.Fatalf("第一次 StartRender 出错: %v", err)
	}

	second, err := c.StartRender(context.Background(), model.RenderRequest{}, nil)
	if err != nil {
		t.Fatalf("第二次 StartRender 出错: %v", err)
	}

	if first == second {
		t.Fatal("两次提交应得到不同的任务ID")
	}
	job, ok := c.CurrentJob()
	if !ok || job.ID != second {
		t.Errorf("协调器应只跟踪第二个任务, 实际 %+v", job)
	}

	c.Stop()
}

func TestBuildRenderRequestPreservesOrder(t *testing.T) {
	pieces := []model.Piece{
		{ID: "p1", SourceID: "a", StartSeconds: 0, EndSeconds: 4, SpeedFactor: 1.0, GainDb: -3, Preset: model.PresetDefault},
		{ID: "p2", SourceID: "b", StartSeconds: 8, EndSeconds: 12, SpeedFactor: 1.2, GainDb: -6, PitchSemitones: 2, Preset: model.PresetVocals},
		{ID: "p3", SourceID: "a", StartSeconds: 4, EndSeconds: 8, SpeedFactor: 0.9, GainDb: 0, Preset: model.PresetDrums},
	}
	project := model.Project{BPM: 124, Key: "F#m"}
	opts := model.MixOptions{CrossfadeMs: 120, BarAware: true, BeatsPerBar: 4, SnapToBars: true, HQPitch: true}

	req := BuildRenderRequest(pieces, project, opts)

	if len(req.Pieces) != 3 {
		t.Fatalf("期望3个描述符, 实际 %d", len(req.Pieces))
	}
	for i, p := range pieces {
		d := req.Pieces[i]
		if d.SourceID != p.SourceID || d.StartSeconds != p.StartSeconds || d.SpeedFactor != p.SpeedFactor ||
			d.PitchSemitones != p.PitchSemitones || d.Preset != p.Preset {
			t.Errorf("描述符 %d 与片段不符: %+v vs %+v", i, d, p)
		}
	}
	if req.ProjectBPM != 124 || req.ProjectKey != "F#m" || req.CrossfadeMs != 120 || !req.BarAware {
		t.Errorf("工程与混音选项透传不对: %+v", req)
	}
}
