package model

// JobStatus 渲染任务状态
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Terminal 判断是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError
}

// PieceDescriptor 提交给渲染服务的片段描述，
// 在请求中的顺序就是权威的播放顺序。
type PieceDescriptor struct {
	SourceID       string  `json:"sourceId"`
	StartSeconds   float64 `json:"startSeconds"`
	EndSeconds     float64 `json:"endSeconds"`
	SpeedFactor    float64 `json:"speedFactor"`
	GainDb         float64 `json:"gainDb"`
	PitchSemitones int     `json:"pitchSemitones"`
	Preset         Preset  `json:"preset"`
}

// MixOptions 混音级渲染选项
type MixOptions struct {
	CrossfadeMs int  `json:"crossfadeMs"`
	BarAware    bool `json:"barAware"`
	BeatsPerBar int  `json:"beatsPerBar"`
	SnapToBars  bool `json:"snapToBars"`
	HQPitch     bool `json:"hqPitch"`
}

// RenderRequest 渲染服务请求体
type RenderRequest struct {
	Pieces      []PieceDescriptor `json:"pieces"`
	CrossfadeMs int               `json:"crossfadeMs"`
	BarAware    bool              `json:"barAware"`
	ProjectBPM  float64           `json:"projectBpm"`
	BeatsPerBar int               `json:"beatsPerBar"`
	SnapToBars  bool              `json:"snapToBars"`
	ProjectKey  string            `json:"projectKey"`
	HQPitch     bool              `json:"hqPitch"`
}

// RenderJob 一次渲染任务的观测状态。
// 状态单调推进，到达终态后引擎不再保留（只做最终通知）。
type RenderJob struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	ProgressPercent float64   `json:"progressPercent"` // 0-100
	Message         string    `json:"message,omitempty"`
	ResultURL       string    `json:"resultUrl,omitempty"`   // Done 时的产物地址
	ErrorDetail     string    `json:"errorDetail,omitempty"` // Error 时后端的原始错误信息
}

// ProgressEvent 推送通道上的进度事件（可选的旁路进度来源）
type ProgressEvent struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}
