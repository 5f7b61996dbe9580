package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/redis/go-redis/v9"
)

// 分段目录缓存：每个源曲目的分段列表整体存一个键。
// 分段由分析服务生成且只在重新分析时变化，缓存期可以给得比较长。
const (
	catalogKeyPrefix = "catalog:segments:"
	catalogTTL       = 24 * time.Hour
)

// CatalogCache 分段目录的Redis缓存
type CatalogCache struct{}

// NewCatalogCache 创建分段目录缓存
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{}
}

// GetSegments 读取一个源的分段缓存。
// 缓存未命中或Redis故障都返回 ok=false 而不是错误，
// 让调用方继续走分析服务。
func (c *CatalogCache) GetSegments(ctx context.Context, sourceID string) ([]model.Segment, bool) {
	if RedisClient == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(ctx, catalogKeyPrefix+sourceID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("读取分段缓存失败，回源分析服务",
				logger.String("sourceId", sourceID),
				logger.ErrorField(err))
		}
		return nil, false
	}

	var segments []model.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		logger.Warn("分段缓存内容损坏，忽略",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		return nil, false
	}

	logger.Debug("分段缓存命中",
		logger.String("sourceId", sourceID),
		logger.Int("segments", len(segments)))

	return segments, true
}

// SetSegments 写入一个源的分段缓存（整体替换）
func (c *CatalogCache) SetSegments(ctx context.Context, sourceID string, segments []model.Segment) error {
	if RedisClient == nil {
		return nil
	}

	data, err := json.Marshal(segments)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := RedisClient.Set(ctx, catalogKeyPrefix+sourceID, data, catalogTTL).Err(); err != nil {
		logger.Error("写入分段缓存失败",
			logger.String("sourceId", sourceID),
			logger.Int("segments", len(segments)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("分段缓存写入成功",
		logger.String("sourceId", sourceID),
		logger.Int("segments", len(segments)))

	return nil
}

// DeleteSegments 删除一个源的分段缓存
func (c *CatalogCache) DeleteSegments(ctx context.Context, sourceID string) error {
	if RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := RedisClient.Del(ctx, catalogKeyPrefix+sourceID).Err(); err != nil {
		logger.Error("删除分段缓存失败",
			logger.String("sourceId", sourceID),
			logger.ErrorField(err))
		return err
	}

	return nil
}
