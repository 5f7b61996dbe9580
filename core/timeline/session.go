package timeline

import (
	"sync"
	"time"

	"MiniMixLab/core/render"
	"MiniMixLab/model"
)

// Session 一个编排会话独占的全部可变状态：
// 时间线 + 工程设置 + 渲染协调器。
// 所有变更都经由 Session 方法在互斥锁内完成（单写者纪律），
// 网络等待期间绝不持锁——对齐类操作用"快照-合并"两段式。
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time

	mu       sync.Mutex
	timeline *Timeline
	project  model.Project
	renderer *render.Coordinator
}

// NewSession 创建空会话
func NewSession(id string, userID int64, defaults model.Project, renderer *render.Coordinator) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		timeline:  New(),
		project:   defaults,
		renderer:  renderer,
	}
}

// Renderer 返回会话的渲染协调器
func (s *Session) Renderer() *render.Coordinator {
	return s.renderer
}

// AddPiece 向时间线追加片段
func (s *Session) AddPiece(src *model.SourceTrack, seg model.Segment) (model.Piece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.AddPiece(src, seg)
}

// RemovePiece 按位置移除片段，越界为无操作
func (s *Session) RemovePiece(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.RemovePiece(index)
}

// Reorder 移动片段位置
func (s *Session) Reorder(from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.Reorder(from, to)
}

// UpdatePiece 部分更新指定位置的片段
func (s *Session) UpdatePiece(index int, upd model.PieceUpdate) (model.Piece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.UpdatePiece(index, upd)
}

// Pieces 返回时间线的一致快照
func (s *Session) Pieces() []model.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Snapshot()
}

// Project 返回当前工程设置
func (s *Session) Project() model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// SetProject 更新工程设置
func (s *Session) SetProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
}

// Arrangement 原子地取出时间线快照和工程设置，
// 渲染请求的构建必须从这里拿数据。
func (s *Session) Arrangement() ([]model.Piece, model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Snapshot(), s.project
}

// TempoResult 速度对齐一个片段的计算结果
type TempoResult struct {
	PieceID     string
	SpeedFactor float64
	EndSeconds  *float64 // 量化后的新终点，不量化时为nil
}

// MergeTempoResults 把在快照上算好的速度对齐结果按片段 ID 合并回时间线。
// 快照之后被移除的片段自动跳过，返回实际写入的条数。
func (s *Session) MergeTempoResults(results []TempoResult) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, r := range results {
		if s.timeline.SetSpeedAndEnd(r.PieceID, r.SpeedFactor, r.EndSeconds) {
			applied++
		}
	}
	return applied
}

// MergePitchSuggestions 把移调建议按源曲目合并回时间线，
// 没有建议的源显式归零。
func (s *Session) MergePitchSuggestions(semitones map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline.SetPitchBySource(semitones)
}

// Close 结束会话，放弃在途的渲染轮询
func (s *Session) Close() {
	if s.renderer != nil {
		s.renderer.Stop()
	}
}
