// Package timeline 维护编排时间线：有序、可变的片段序列。
// 顺序即播放顺序，片段 ID 稳定且全局唯一。
package timeline

import (
	"errors"

	"MiniMixLab/model"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPieceEdit 片段更新未通过校验，整个更新被拒绝
	ErrInvalidPieceEdit = errors.New("invalid piece edit")
	// ErrInvalidSegment 时间段不合法（end <= start），无法入时间线
	ErrInvalidSegment = errors.New("invalid segment")
)

// Timeline 有序的片段序列。自身不做并发保护，
// 由持有它的 Session 以单写者纪律串行访问。
type Timeline struct {
	pieces []model.Piece
}

// New 创建空时间线
func New() *Timeline {
	return &Timeline{}
}

// Len 返回片段数量
func (t *Timeline) Len() int {
	return len(t.pieces)
}

// AddPiece 用目录中的时间段创建一个新片段并追加到末尾。
// 新片段使用默认的变速/增益/移调/预设，不会改动已有片段。
func (t *Timeline) AddPiece(src *model.SourceTrack, seg model.Segment) (model.Piece, error) {
	if !seg.Valid() {
		return model.Piece{}, ErrInvalidSegment
	}

	piece := model.Piece{
		ID:                uuid.NewString(),
		SourceID:          src.ID,
		SourceDisplayName: src.DisplayName,
		StartSeconds:      seg.StartSeconds,
		EndSeconds:        seg.EndSeconds,
		SpeedFactor:       model.DefaultSpeedFactor,
		GainDb:            model.DefaultGainDb,
		PitchSemitones:    model.DefaultPitchSemitones,
		Preset:            model.PresetDefault,
		Label:             seg.Label,
	}

	t.pieces = append(t.pieces, piece)
	return piece, nil
}

// RemovePiece 按位置移除片段。
// 越界时静默忽略：并发编辑下前端拿到的下标可能已经过期，
// 这里按约定不算错误。被移除片段的 ID 不会被复用。
func (t *Timeline) RemovePiece(index int) {
	if index < 0 || index >= len(t.pieces) {
		return
	}
	t.pieces = append(t.pieces[:index], t.pieces[index+1:]...)
}

// Reorder 把 from 位置的片段移动到 to 位置，
// 其余片段保持相对顺序，片段总数和 ID 集合不变。
// 任一下标越界时不做任何事。
func (t *Timeline) Reorder(from, to int) {
	n := len(t.pieces)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return
	}

	moved := t.pieces[from]
	rest := append(t.pieces[:from:from], t.pieces[from+1:]...)
	t.pieces = append(rest[:to:to], append([]model.Piece{moved}, rest[to:]...)...)
}

// UpdatePiece 把部分更新合并到指定位置的片段上，未提供的字段不动。
// 校验失败（变速 <= 0、end <= start、非法预设）时整个更新被拒绝，
// 片段保持原样——统一采用拒绝而不是截断。
func (t *Timeline) UpdatePiece(index int, upd model.PieceUpdate) (model.Piece, error) {
	if index < 0 || index >= len(t.pieces) {
		return model.Piece{}, ErrInvalidPieceEdit
	}

	merged := t.pieces[index]
	if upd.StartSeconds != nil {
		merged.StartSeconds = *upd.StartSeconds
	}
	if upd.EndSeconds != nil {
		merged.EndSeconds = *upd.EndSeconds
	}
	if upd.SpeedFactor != nil {
		merged.SpeedFactor = *upd.SpeedFactor
	}
	if upd.GainDb != nil {
		merged.GainDb = *upd.GainDb
	}
	if upd.PitchSemitones != nil {
		merged.PitchSemitones = *upd.PitchSemitones
	}
	if upd.Preset != nil {
		merged.Preset = *upd.Preset
	}
	if upd.Label != nil {
		merged.Label = *upd.Label
	}

	if merged.SpeedFactor <= 0 || merged.EndSeconds <= merged.StartSeconds || !model.ValidPreset(merged.Preset) {
		return model.Piece{}, ErrInvalidPieceEdit
	}

	t.pieces[index] = merged
	return merged, nil
}

// Snapshot 返回当前时间线的完整拷贝，
// 供对齐/渲染在不持锁的情况下安全读取。
func (t *Timeline) Snapshot() []model.Piece {
	out := make([]model.Piece, len(t.pieces))
	copy(out, t.pieces)
	return out
}

// SetSpeedAndEnd 按片段 ID 回写对齐结果（变速系数和可选的新终点）。
// 片段已被移除时返回 false，调用方据此丢弃过期结果。
func (t *Timeline) SetSpeedAndEnd(pieceID string, speedFactor float64, endSeconds *float64) bool {
	for i := range t.pieces {
		if t.pieces[i].ID == pieceID {
			t.pieces[i].SpeedFactor = speedFactor
			if endSeconds != nil {
				t.pieces[i].EndSeconds = *endSeconds
			}
			return true
		}
	}
	return false
}

// SetPitchBySource 按源曲目批量写入移调建议。
// 未出现在 semitones 里的源一律归零——显式重置，
// 防止换调后残留过期的移调值。
func (t *Timeline) SetPitchBySource(semitones map[string]int) {
	for i := range t.pieces {
		t.pieces[i].PitchSemitones = semitones[t.pieces[i].SourceID]
	}
}
