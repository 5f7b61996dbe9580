package model

// Preset 渲染预设，决定渲染端对片段的处理链
type Preset string

const (
	PresetDefault Preset = "default"
	PresetVocals  Preset = "vocals"
	PresetDrums   Preset = "drums"
	PresetPads    Preset = "pads"
)

// ValidPreset 判断预设是否合法
func ValidPreset(p Preset) bool {
	switch p {
	case PresetDefault, PresetVocals, PresetDrums, PresetPads:
		return true
	}
	return false
}

// 新建 Piece 的默认参数
const (
	DefaultSpeedFactor    = 1.0
	DefaultGainDb         = -3.0
	DefaultPitchSemitones = 0
)

// Piece 时间线上一个已放置、可编辑的片段实例。
// ID 全局唯一且在重排中保持稳定（身份与位置无关）。
type Piece struct {
	ID                string  `json:"id"`
	SourceID          string  `json:"sourceId"`
	SourceDisplayName string  `json:"sourceDisplayName"`
	StartSeconds      float64 `json:"startSeconds"`
	EndSeconds        float64 `json:"endSeconds"` // 恒大于 StartSeconds
	SpeedFactor       float64 `json:"speedFactor"`
	GainDb            float64 `json:"gainDb"`
	PitchSemitones    int     `json:"pitchSemitones"`
	Preset            Preset  `json:"preset"`
	Label             string  `json:"label"`
}

// PieceUpdate 显式的部分更新：nil 字段保持原值。
// 避免 map 合并那种悄悄接受畸形字段的做法。
type PieceUpdate struct {
	StartSeconds   *float64 `json:"startSeconds,omitempty"`
	EndSeconds     *float64 `json:"endSeconds,omitempty"`
	SpeedFactor    *float64 `json:"speedFactor,omitempty"`
	GainDb         *float64 `json:"gainDb,omitempty"`
	PitchSemitones *int     `json:"pitchSemitones,omitempty"`
	Preset         *Preset  `json:"preset,omitempty"`
	Label          *string  `json:"label,omitempty"`
}

// Empty 判断是否没有任何待更新字段
func (u PieceUpdate) Empty() bool {
	return u.StartSeconds == nil && u.EndSeconds == nil && u.SpeedFactor == nil &&
		u.GainDb == nil && u.PitchSemitones == nil && u.Preset == nil && u.Label == nil
}
