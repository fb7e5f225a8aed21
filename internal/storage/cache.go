package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/extract"
)

// ExtractCacheTTL 单链接深度抽取结果的缓存时间
const ExtractCacheTTL = 10 * time.Minute

func extractCacheKey(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return "extract:" + hex.EncodeToString(sum[:])
}

// CachedExtraction 未配置 Redis 或未命中时返回 false
func (s *Store) CachedExtraction(ctx context.Context, pageURL string) (extract.Result, bool) {
	if s == nil || s.Redis == nil {
		return extract.Result{}, false
	}
	bs, err := s.Redis.Get(ctx, extractCacheKey(pageURL)).Bytes()
	if err != nil {
		return extract.Result{}, false
	}
	var res extract.Result
	if err := json.Unmarshal(bs, &res); err != nil {
		return extract.Result{}, false
	}
	return res, true
}

// CacheExtraction 只缓存非空结果
func (s *Store) CacheExtraction(ctx context.Context, pageURL string, res extract.Result) {
	if s == nil || s.Redis == nil || res.Empty() {
		return
	}
	bs, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, extractCacheKey(pageURL), bs, ExtractCacheTTL).Err(); err != nil {
		s.logger.Debug("cache extraction failed", zap.String("url", pageURL), zap.Error(err))
	}
}
