// Package beat 提供秒/拍/小节之间换算的纯函数。
package beat

import "math"

// epsilonBPM 防止除零：非法（<=0）的 bpm 一律按这个极小正值处理，
// 宁可得到一个极慢的节奏也不让计算崩掉。
const epsilonBPM = 1e-6

// SecondsPerBeat 返回给定 bpm 下一拍的时长（秒）。
func SecondsPerBeat(bpm float64) float64 {
	return 60.0 / math.Max(bpm, epsilonBPM)
}

// SecondsPerBar 返回给定 bpm 和每小节拍数下一小节的时长（秒）。
func SecondsPerBar(bpm float64, beatsPerBar int) float64 {
	if beatsPerBar < 1 {
		beatsPerBar = 4
	}
	return SecondsPerBeat(bpm) * float64(beatsPerBar)
}

// QuantizeLengthToBeats 把一段时长对齐到最近的整拍数。
// 取整采用四舍五入（math.Round，0.5 远离零方向），结果至少为一拍，
// 非零时长永远不会被吸到零。
func QuantizeLengthToBeats(lengthSeconds, bpm float64) float64 {
	spb := SecondsPerBeat(bpm)
	beats := math.Round(lengthSeconds / spb)
	if beats < 1 {
		beats = 1
	}
	return beats * spb
}

// ComputeSpeedFactor 计算把 sourceBpm 对齐到 targetBpm 所需的变速系数。
// 系数大于 1 表示加速（时长变短），小于 1 表示减速。
// 该系数只是片段上的建议元数据，真正的变速由渲染服务执行。
func ComputeSpeedFactor(sourceBPM, targetBPM float64) float64 {
	return targetBPM / math.Max(sourceBPM, epsilonBPM)
}
