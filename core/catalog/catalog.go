// Package catalog 维护分段目录：每个源曲目经分析得到的带标签时间段列表。
// 上传成功后拉取一次，此后对时间线只读；唯一的变更方式是整体刷新替换。
package catalog

import (
	"context"
	"fmt"
	"sync"

	"MiniMixLab/cache"
	"MiniMixLab/core/analysis"
	"MiniMixLab/logger"
	"MiniMixLab/model"
)

// SegmentFetcher 从分析服务拉取分段，由 analysis.Client 实现
type SegmentFetcher interface {
	FetchSegments(ctx context.Context, sourceID string) ([]model.Segment, error)
}

// Catalog 分段目录。进程内存是第一层，Redis是第二层，
// 两层都未命中才回源分析服务。
type Catalog struct {
	fetcher SegmentFetcher
	store   *cache.CatalogCache

	mu       sync.RWMutex
	segments map[string][]model.Segment
}

// New 创建分段目录
func New(fetcher SegmentFetcher, store *cache.CatalogCache) *Catalog {
	return &Catalog{
		fetcher:  fetcher,
		store:    store,
		segments: make(map[string][]model.Segment),
	}
}

// Segments 返回一个源的分段列表。
// 分析失败时返回 ErrAnalysisUnavailable 包装的错误，
// 调用方按"该源没有分段"降级处理，不中断会话。
func (c *Catalog) Segments(ctx context.Context, sourceID string) ([]model.Segment, error) {
	c.mu.RLock()
	segs, ok := c.segments[sourceID]
	c.mu.RUnlock()
	if ok {
		return segs, nil
	}

	if c.store != nil {
		if cached, hit := c.store.GetSegments(ctx, sourceID); hit {
			c.mu.Lock()
			c.segments[sourceID] = cached
			c.mu.Unlock()
			return cached, nil
		}
	}

	return c.Refresh(ctx, sourceID)
}

// Refresh 回源分析服务重新拉取分段并整体替换两层缓存
func (c *Catalog) Refresh(ctx context.Context, sourceID string) ([]model.Segment, error) {
	fetched, err := c.fetcher.FetchSegments(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrAnalysisUnavailable, err)
	}

	c.mu.Lock()
	c.segments[sourceID] = fetched
	c.mu.Unlock()

	if c.store != nil {
		// 缓存写失败只记日志，目录数据本身已经可用
		if err := c.store.SetSegments(ctx, sourceID, fetched); err != nil {
			logger.Warn("分段目录写缓存失败",
				logger.String("sourceId", sourceID),
				logger.ErrorField(err))
		}
	}

	logger.Info("分段目录已更新",
		logger.String("sourceId", sourceID),
		logger.Int("segments", len(fetched)))

	return fetched, nil
}

// HasSegments 判断一个源是否有可用分段。
// 没有分段（或分析不可用）的源不能被加入时间线。
func (c *Catalog) HasSegments(ctx context.Context, sourceID string) bool {
	segs, err := c.Segments(ctx, sourceID)
	return err == nil && len(segs) > 0
}

// Forget 从两层缓存中移除一个源（源被删除时调用）
func (c *Catalog) Forget(ctx context.Context, sourceID string) {
	c.mu.Lock()
	delete(c.segments, sourceID)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteSegments(ctx, sourceID); err != nil {
			logger.Warn("分段缓存清除失败",
				logger.String("sourceId", sourceID),
				logger.ErrorField(err))
		}
	}
}
