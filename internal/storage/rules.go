package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LJTian/NewsDigest/internal/extract"
)

// RuleStore 基于数据库的规则存储，实现 extract.RuleStore
type RuleStore struct {
	store *Store
}

func (s *Store) Rules() *RuleStore {
	return &RuleStore{store: s}
}

var _ extract.RuleStore = (*RuleStore)(nil)

// ListRules 按 id 升序返回全部规则
func (r *RuleStore) ListRules(ctx context.Context) ([]extract.Rule, error) {
	var rows []ExtractionRule
	if err := r.store.DB.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list extraction rules: %w", err)
	}
	out := make([]extract.Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRule())
	}
	return out, nil
}

func (r *RuleStore) GetRule(ctx context.Context, id uint) (extract.Rule, error) {
	var row ExtractionRule
	if err := r.store.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		return extract.Rule{}, fmt.Errorf("get extraction rule %d: %w", id, err)
	}
	return row.toRule(), nil
}

// SaveRule 仅当库中 version 与 rule.Version 一致时写入，并把 version 加一；
// 没有命中任何行时返回 extract.ErrVersionConflict
func (r *RuleStore) SaveRule(ctx context.Context, rule extract.Rule) error {
	res := r.store.DB.WithContext(ctx).
		Model(&ExtractionRule{}).
		Where("id = ? AND version = ?", rule.ID, rule.Version).
		Updates(map[string]any{
			"site_name":        rule.SiteName,
			"site_domain":      strings.ToLower(strings.TrimSpace(rule.SiteDomain)),
			"title_selector":   rule.TitleSelector,
			"content_selector": rule.ContentSelector,
			"request_headers":  headersJSON(rule.RequestHeaders),
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("save extraction rule %d: %w", rule.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return extract.ErrVersionConflict
	}
	return nil
}

// SeedRules 按 site_domain 幂等写入种子规则，已存在的不覆盖（线上可能已被自修正）
func (r *RuleStore) SeedRules(ctx context.Context, rules []extract.Rule) (int, error) {
	created := 0
	for _, rule := range rules {
		domain := strings.ToLower(strings.TrimSpace(rule.SiteDomain))
		row := ExtractionRule{
			SiteName:        rule.SiteName,
			SiteDomain:      domain,
			TitleSelector:   rule.TitleSelector,
			ContentSelector: rule.ContentSelector,
			RequestHeaders:  headersJSON(rule.RequestHeaders),
		}
		res := r.store.DB.WithContext(ctx).Where("site_domain = ?", domain).FirstOrCreate(&row)
		if res.Error != nil {
			return created, fmt.Errorf("seed extraction rule %s: %w", domain, res.Error)
		}
		if res.RowsAffected > 0 {
			created++
		}
	}
	r.store.logger.Info("extraction rules seeded", zap.Int("total", len(rules)), zap.Int("created", created))
	return created, nil
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
