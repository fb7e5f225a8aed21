package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LJTian/NewsDigest/internal/processor"
)

const listCacheTTL = 5 * time.Minute

// SaveBatch 保存一批新闻，已存在的按 ID 更新标题/摘要
func (s *Store) SaveBatch(ctx context.Context, items []processor.ProcessedNews) error {
	for _, it := range items {
		title := truncateRunesDB(toValidUTF8(it.Title), 512)
		summary := truncateRunesDB(toValidUTF8(it.Summary), 600)
		rec := &NewsRecord{
			ID:            it.ID,
			Title:         title,
			Summary:       summary,
			Source:        it.Source,
			OriginalURL:   it.URL,
			Cover:         it.Cover,
			Keyword:       it.Keyword,
			CollectedAt:   it.CollectedAt,
			PublishedDate: it.CollectedAt.In(locEast8).Format("2006-01-02"),
		}

		db := s.DB.WithContext(ctx)
		if err := db.Where("id = ?", it.ID).FirstOrCreate(rec).Error; err != nil {
			return fmt.Errorf("save news %s: %w", it.ID, err)
		}
		if err := db.Model(rec).Updates(map[string]any{
			"title":   title,
			"summary": summary,
			"cover":   it.Cover,
		}).Error; err != nil {
			s.logger.Warn("update news failed", zap.String("id", it.ID), zap.Error(err))
		}
	}
	return nil
}

// GetRecord 按 ID 读取一条新闻
func (s *Store) GetRecord(ctx context.Context, id string) (*NewsRecord, error) {
	rec := &NewsRecord{}
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateDeepContent 在一个事务里锁行并写入正文；记录不存在时整体回滚
func (s *Store) UpdateDeepContent(ctx context.Context, id, content string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &NewsRecord{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(rec).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(rec).Updates(map[string]any{
			"deep_content":   toValidUTF8(content),
			"deep_collected": true,
			"deep_at":        &now,
		}).Error
	})
}

// ListNews 按来源与可选日期返回新闻列表，并使用 Redis 做简单缓存
// source: 来源名，可为空
// date: 可选，格式 2006-01-02
func (s *Store) ListNews(ctx context.Context, source string, limit int, date string) ([]NewsRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	cacheKey := fmt.Sprintf("news:list:%s:%d:%s", source, limit, date)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []NewsRecord
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []NewsRecord
	db := s.DB.WithContext(ctx).Model(&NewsRecord{})
	if date != "" {
		db = db.Where("published_date = ?", date)
	}
	if source != "" {
		db = db.Where("source = ?", source)
	}
	if err := db.Order("collected_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// ListPublishedDates 返回有数据的日期列表（倒序），结果缓存 5 分钟
func (s *Store) ListPublishedDates(ctx context.Context, source string, limit int) ([]string, error) {
	if limit <= 0 || limit > 365 {
		limit = 31
	}
	cacheKey := fmt.Sprintf("news:dates:%s:%d", source, limit)
	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []string
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	q := s.DB.WithContext(ctx).Model(&NewsRecord{}).Distinct("published_date").Where("published_date <> ''")
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var dates []string
	if err := q.Order("published_date DESC").Limit(limit).Pluck("published_date", &dates).Error; err != nil {
		return nil, err
	}
	if s.Redis != nil && len(dates) > 0 {
		if bs, err := json.Marshal(dates); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return dates, nil
}
