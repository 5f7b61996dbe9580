package render

import (
	"context"
	"sync"
	"time"

	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/google/uuid"
)

// State 渲染协调器状态机：Idle → Submitting → Polling → Done | Error
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateDone       State = "done"
	StateError      State = "error"
)

// DefaultPollInterval 任务状态轮询间隔默认值
const DefaultPollInterval = time.Second

// JobService 渲染任务的提交与状态查询，由 Client 实现
type JobService interface {
	Submit(ctx context.Context, req model.RenderRequest) (*SubmitResult, error)
	JobStatus(ctx context.Context, jobID string) (*model.RenderJob, error)
}

// BuildRenderRequest 把时间线快照序列化为渲染请求。
// 描述符顺序严格等于时间线顺序——这是权威的播放序列。
func BuildRenderRequest(pieces []model.Piece, project model.Project, opts model.MixOptions) model.RenderRequest {
	descriptors := make([]model.PieceDescriptor, 0, len(pieces))
	for _, p := range pieces {
		descriptors = append(descriptors, model.PieceDescriptor{
			SourceID:       p.SourceID,
			StartSeconds:   p.StartSeconds,
			EndSeconds:     p.EndSeconds,
			SpeedFactor:    p.SpeedFactor,
			GainDb:         p.GainDb,
			PitchSemitones: p.PitchSemitones,
			Preset:         p.Preset,
		})
	}

	return model.RenderRequest{
		Pieces:      descriptors,
		CrossfadeMs: opts.CrossfadeMs,
		BarAware:    opts.BarAware,
		ProjectBPM:  project.BPM,
		BeatsPerBar: opts.BeatsPerBar,
		SnapToBars:  opts.SnapToBars,
		ProjectKey:  project.Key,
		HQPitch:     opts.HQPitch,
	}
}

// Coordinator 驱动单个会话的渲染任务生命周期。
// 同一时刻只跟踪一个任务：再次提交会放弃上一个任务的轮询
// （远端任务继续跑完，只是无人观测，这是允许的）。
type Coordinator struct {
	sessionID    string
	svc          JobService
	pollInterval time.Duration
	notify       func(model.RenderJob) // 每次进度变化的回调（推给UI），可为nil

	mu         sync.RWMutex
	state      State
	job        *model.RenderJob
	cancelPoll context.CancelFunc
	wg         sync.WaitGroup
}

// NewCoordinator 创建渲染协调器
func NewCoordinator(sessionID string, svc JobService, pollInterval time.Duration, notify func(model.RenderJob)) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Coordinator{
		sessionID:    sessionID,
		svc:          svc,
		pollInterval: pollInterval,
		notify:       notify,
		state:        StateIdle,
	}
}

// State 返回当前状态
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CurrentJob 返回当前任务的快照
func (c *Coordinator) CurrentJob() (model.RenderJob, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.job == nil {
		return model.RenderJob{}, false
	}
	return *c.job, true
}

// StartRender 提交渲染请求并开始跟踪任务。
// push 为可选的旁路进度通道（如渲染服务的推送），可传nil。
// 提交传输失败时不产生任务，错误为 ErrSubmitFailed。
func (c *Coordinator) StartRender(ctx context.Context, req model.RenderRequest, push <-chan model.ProgressEvent) (string, error) {
	// 放弃上一个任务的轮询（不取消远端任务）
	c.abandonPoll()

	c.setState(StateSubmitting)

	result, err := c.svc.Submit(ctx, req)
	if err != nil {
		c.setState(StateError)
		logger.Error("渲染提交失败",
			logger.String("sessionId", c.sessionID),
			logger.ErrorField(err))
		return "", err
	}

	// 同步直出变体：后端直接给了产物地址，没有任务要轮询
	if result.JobID == "" {
		job := model.RenderJob{
			ID:              "direct-" + uuid.NewString(),
			Status:          model.JobDone,
			ProgressPercent: 100,
			ResultURL:       result.URL,
		}
		c.mu.Lock()
		c.state = StateDone
		c.job = &job
		c.mu.Unlock()

		c.emit(job)
		logger.Info("渲染同步完成",
			logger.String("sessionId", c.sessionID),
			logger.String("url", result.URL))
		return job.ID, nil
	}

	job := model.RenderJob{ID: result.JobID, Status: model.JobQueued}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.state = StatePolling
	c.job = &job
	c.cancelPoll = cancel
	c.mu.Unlock()

	c.emit(job)
	logger.Info("渲染任务已提交，开始轮询",
		logger.String("sessionId", c.sessionID),
		logger.String("jobId", result.JobID),
		logger.Duration("interval", c.pollInterval))

	c.wg.Add(1)
	go c.awaitCompletion(pollCtx, result.JobID, push)

	return result.JobID, nil
}

// awaitCompletion 以固定间隔轮询任务状态直到终态。
// 推送事件和轮询结果写同一份进度（后写覆盖先写，两者都单调逼近完成），
// 但终态只能由状态读取确立，绝不单凭推送消息宣布成功。
func (c *Coordinator) awaitCompletion(ctx context.Context, jobID string, push <-chan model.ProgressEvent) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 轮询被放弃：远端任务可能仍会完成，但无人观测，直接收尾
			logger.Debug("渲染轮询已放弃",
				logger.String("sessionId", c.sessionID),
				logger.String("jobId", jobID))
			return

		case ev, ok := <-push:
			if !ok {
				push = nil // 推送通道关闭后只靠轮询
				continue
			}
			if job, changed := c.applyProgress(jobID, ev); changed {
				c.emit(job)
			}

		case <-ticker.C:
			status, err := c.svc.JobStatus(ctx, jobID)
			if err != nil {
				// 单次查询失败不终止轮询，下一个周期再试
				logger.Warn("查询渲染任务状态失败",
					logger.String("jobId", jobID),
					logger.ErrorField(err))
				continue
			}

			job, terminal := c.applyStatus(jobID, status)
			c.emit(job)

			if terminal {
				if job.Status == model.JobError {
					logger.Warn("渲染任务失败",
						logger.String("jobId", jobID),
						logger.String("detail", job.ErrorDetail))
				} else {
					logger.Info("渲染任务完成",
						logger.String("jobId", jobID),
						logger.String("url", job.ResultURL))
				}
				return
			}
		}
	}
}

// applyProgress 合并推送进度。任务已是终态或ID对不上时忽略。
func (c *Coordinator) applyProgress(jobID string, ev model.ProgressEvent) (model.RenderJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || c.job.ID != jobID || c.job.Status.Terminal() {
		if c.job == nil {
			return model.RenderJob{}, false
		}
		return *c.job, false
	}

	c.job.ProgressPercent = ev.Percent
	if ev.Message != "" {
		c.job.Message = ev.Message
	}
	if c.job.Status == model.JobQueued && ev.Percent > 0 {
		c.job.Status = model.JobRunning
	}
	return *c.job, true
}

// applyStatus 合并轮询到的权威状态，返回快照和是否到达终态
func (c *Coordinator) applyStatus(jobID string, status *model.RenderJob) (model.RenderJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || c.job.ID != jobID {
		return *status, status.Status.Terminal()
	}

	c.job.Status = status.Status
	c.job.ProgressPercent = status.ProgressPercent
	c.job.Message = status.Message
	c.job.ResultURL = status.ResultURL
	c.job.ErrorDetail = status.ErrorDetail

	switch status.Status {
	case model.JobDone:
		c.state = StateDone
	case model.JobError:
		c.state = StateError
	}

	return *c.job, status.Status.Terminal()
}

// abandonPoll 停掉当前轮询循环（如果有）
func (c *Coordinator) abandonPoll() {
	c.mu.Lock()
	cancel := c.cancelPoll
	c.cancelPoll = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop 放弃轮询并等待后台goroutine退出，会话销毁时调用
func (c *Coordinator) Stop() {
	c.abandonPoll()
	c.wg.Wait()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) emit(job model.RenderJob) {
	if c.notify != nil {
		c.notify(job)
	}
}
