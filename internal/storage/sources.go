package storage

import (
	"context"
	"fmt"
)

// ListEnabledSources 返回启用的数据源，按 id 升序
func (s *Store) ListEnabledSources(ctx context.Context) ([]CrawlerSource, error) {
	var list []CrawlerSource
	if err := s.DB.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list crawler sources: %w", err)
	}
	return list, nil
}

// GetSource 不存在时返回 (nil, nil)
func (s *Store) GetSource(ctx context.Context, key string) (*CrawlerSource, error) {
	src := &CrawlerSource{}
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(src).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get crawler source %s: %w", key, err)
	}
	return src, nil
}

// EnsureSource 确保某个数据源存在，默认启用
func (s *Store) EnsureSource(ctx context.Context, key, displayName string) (*CrawlerSource, error) {
	src := &CrawlerSource{}
	if err := s.DB.WithContext(ctx).Where("key = ?", key).First(src).Error; err == nil {
		return src, nil
	}

	src = &CrawlerSource{
		Key:         key,
		DisplayName: displayName,
		Enabled:     true,
	}
	if err := s.DB.WithContext(ctx).Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}
