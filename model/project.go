package model

import "strings"

// Project 工程级目标节奏与调性，所有片段向它对齐
type Project struct {
	BPM float64 `json:"bpm"` // 恒大于 0
	Key string  `json:"key"` // 12个音级 × 大小调，如 "C"、"Am"、"F#"
}

// pitchClasses 12个音级（以升号记法为准）
var pitchClasses = map[string]bool{
	"C": true, "C#": true, "D": true, "D#": true, "E": true, "F": true,
	"F#": true, "G": true, "G#": true, "A": true, "A#": true, "B": true,
}

// ValidKey 校验调性写法：音级（升号记法）加可选的小调后缀 m。
// 例如 "C"、"F#"、"Am"、"D#m"。
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	pc := key
	if strings.HasSuffix(key, "m") && key != "m" {
		pc = key[:len(key)-1]
	}
	return pitchClasses[pc]
}

// ValidProject 校验工程设置
func ValidProject(p Project) bool {
	return p.BPM > 0 && ValidKey(p.Key)
}
