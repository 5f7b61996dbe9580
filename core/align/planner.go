// Package align 实现两条相互独立的对齐流程：
// 速度对齐（line-up）和移调匹配（pitch match）。
// 两条流程都是幂等的，重复执行不会累积漂移；
// 都在时间线快照上计算，算完按片段 ID 合并回去，
// 网络等待期间不会和用户的手动编辑交错。
package align

import (
	"context"
	"fmt"

	"MiniMixLab/core/analysis"
	"MiniMixLab/core/beat"
	"MiniMixLab/core/timeline"
	"MiniMixLab/logger"
	"MiniMixLab/model"
)

// SourceResolver 查询源曲目元数据（含bpm分析）
type SourceResolver interface {
	GetByID(ctx context.Context, id string) (*model.SourceTrack, error)
}

// SuggestionService 外部对齐/移调建议服务，由 analysis.Client 实现
type SuggestionService interface {
	AutoAlign(ctx context.Context, sourceIDs []string, targetBPM float64) (map[string]analysis.AlignSuggestion, error)
	AutoPitch(ctx context.Context, sourceIDs []string, projectKey string) (map[string]int, error)
}

// TempoOptions 速度对齐选项
type TempoOptions struct {
	// Quantize 为真时把片段时长吸附到工程节拍网格（只动终点，起点不变）
	Quantize bool
}

// Planner 对齐规划器
type Planner struct {
	sources SourceResolver
	svc     SuggestionService
}

// NewPlanner 创建对齐规划器
func NewPlanner(sources SourceResolver, svc SuggestionService) *Planner {
	return &Planner{sources: sources, svc: svc}
}

// LineUpTempo 速度对齐：为快照中的每个片段计算对齐到工程bpm的变速系数，
// 可选地把片段时长量化到整拍。只写 speedFactor 和 endSeconds，
// 不改顺序也不改源引用。返回实际写回的片段数。
//
// 源bpm的取值顺序：源曲目自带分析 → 对齐服务的建议 → 工程bpm兜底
// （兜底意味着变速系数为1）。
func (p *Planner) LineUpTempo(ctx context.Context, sess *timeline.Session, opts TempoOptions) (int, error) {
	pieces, project := sess.Arrangement()
	if len(pieces) == 0 {
		return 0, nil
	}

	// 找出没有bpm分析的源，统一向对齐服务要一次建议
	sourceBPM := make(map[string]float64)
	var unknown []string
	seen := make(map[string]bool)

	for _, piece := range pieces {
		if seen[piece.SourceID] {
			continue
		}
		seen[piece.SourceID] = true

		src, err := p.sources.GetByID(ctx, piece.SourceID)
		if err == nil && src != nil && src.Analysis != nil && src.Analysis.BPM > 0 {
			sourceBPM[piece.SourceID] = src.Analysis.BPM
		} else {
			unknown = append(unknown, piece.SourceID)
		}
	}

	suggested := make(map[string]analysis.AlignSuggestion)
	if len(unknown) > 0 && p.svc != nil {
		var err error
		suggested, err = p.svc.AutoAlign(ctx, unknown, project.BPM)
		if err != nil {
			// 建议拿不到就兜底到工程bpm，不让整个对齐失败
			logger.Warn("对齐建议获取失败，缺bpm的源按工程bpm处理",
				logger.Int("sources", len(unknown)),
				logger.ErrorField(err))
			suggested = nil
		}
	}

	results := make([]timeline.TempoResult, 0, len(pieces))
	for _, piece := range pieces {
		var speed float64
		if bpm, ok := sourceBPM[piece.SourceID]; ok {
			speed = beat.ComputeSpeedFactor(bpm, project.BPM)
		} else if sug, ok := suggested[piece.SourceID]; ok && sug.SuggestedSpeed > 0 {
			speed = sug.SuggestedSpeed
		} else {
			// 源bpm未知：按工程bpm处理，等价于不变速
			speed = 1.0
		}

		r := timeline.TempoResult{PieceID: piece.ID, SpeedFactor: speed}

		if opts.Quantize {
			length := piece.EndSeconds - piece.StartSeconds
			quantized := beat.QuantizeLengthToBeats(length, project.BPM)
			end := piece.StartSeconds + quantized
			r.EndSeconds = &end
		}

		results = append(results, r)
	}

	applied := sess.MergeTempoResults(results)

	logger.Info("速度对齐完成",
		logger.String("sessionId", sess.ID),
		logger.Float64("projectBpm", project.BPM),
		logger.Bool("quantize", opts.Quantize),
		logger.Int("pieces", len(results)),
		logger.Int("applied", applied))

	return applied, nil
}

// MatchPitch 移调匹配：收集时间线引用的全部源，向调性分析服务
// 请求每个源的半音建议，写回到引用该源的所有片段上。
// 响应中缺席的源显式重置为0半音，防止换调后残留过期移调值。
func (p *Planner) MatchPitch(ctx context.Context, sess *timeline.Session) error {
	pieces, project := sess.Arrangement()
	if len(pieces) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var sourceIDs []string
	for _, piece := range pieces {
		if !seen[piece.SourceID] {
			seen[piece.SourceID] = true
			sourceIDs = append(sourceIDs, piece.SourceID)
		}
	}

	suggestions, err := p.svc.AutoPitch(ctx, sourceIDs, project.Key)
	if err != nil {
		return fmt.Errorf("移调建议获取失败: %w", err)
	}

	sess.MergePitchSuggestions(suggestions)

	logger.Info("移调匹配完成",
		logger.String("sessionId", sess.ID),
		logger.String("projectKey", project.Key),
		logger.Int("sources", len(sourceIDs)),
		logger.Int("suggested", len(suggestions)))

	return nil
}
