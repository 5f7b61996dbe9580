package model

import "time"

// TrackAnalysis 音频分析结果（节拍/调性/首拍偏移）
// 分析服务不可用时整体为空，曲目仍可上传但不能入编排时间线。
type TrackAnalysis struct {
	BPM                    float64 `json:"bpm" gorm:"column:bpm"`
	Key                    string  `json:"key" gorm:"column:key_sig;size:8"`
	FirstBeatOffsetSeconds float64 `json:"firstBeatOffsetSeconds" gorm:"column:first_beat_offset"`
}

// SourceTrack 上传成功后登记的源曲目，登记后元数据不再变更。
type SourceTrack struct {
	ID              string         `json:"id" gorm:"primaryKey;size:36"`
	UserID          int64          `json:"userId" gorm:"index;not null"`
	DisplayName     string         `json:"displayName" gorm:"size:255;not null"`
	ObjectPath      string         `json:"-" gorm:"size:512;not null"` // MinIO 对象路径，不对外暴露
	DurationSeconds float64        `json:"durationSeconds" gorm:"column:duration_seconds"`
	Analysis        *TrackAnalysis `json:"analysis,omitempty" gorm:"embedded;embeddedPrefix:analysis_"`
	Analyzed        bool           `json:"analyzed" gorm:"column:analyzed"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (SourceTrack) TableName() string {
	return "source_tracks"
}

// Segment 分析服务在源曲目中识别出的带标签时间段（如 Intro/Chorus）。
// 只读目录数据，不属于时间线。
type Segment struct {
	Label        string  `json:"label"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Valid 校验时间段合法性
func (s Segment) Valid() bool {
	return s.EndSeconds > s.StartSeconds
}
