package storage

import (
	"time"

	"gorm.io/datatypes"

	"github.com/LJTian/NewsDigest/internal/extract"
)

// ExtractionRule 站点抽取规则；Version 用于乐观并发更新
type ExtractionRule struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	SiteName        string            `gorm:"size:128;index" json:"siteName"`
	SiteDomain      string            `gorm:"size:255;uniqueIndex" json:"siteDomain"`
	TitleSelector   string            `gorm:"size:512" json:"titleSelector"`
	ContentSelector string            `gorm:"size:512" json:"contentSelector"`
	RequestHeaders  datatypes.JSONMap `gorm:"type:jsonb" json:"requestHeaders"`
	Version         int               `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r ExtractionRule) toRule() extract.Rule {
	headers := make(map[string]string, len(r.RequestHeaders))
	for k, v := range r.RequestHeaders {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return extract.Rule{
		ID:              r.ID,
		SiteName:        r.SiteName,
		SiteDomain:      r.SiteDomain,
		TitleSelector:   r.TitleSelector,
		ContentSelector: r.ContentSelector,
		RequestHeaders:  headers,
		Version:         r.Version,
	}
}

func headersJSON(h map[string]string) datatypes.JSONMap {
	m := make(datatypes.JSONMap, len(h))
	for k, v := range h {
		m[k] = v
	}
	return m
}

// CrawlerSource 数据源配置，Config 原样交给爬虫工厂解析
type CrawlerSource struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Key         string            `gorm:"size:64;uniqueIndex" json:"key"`
	DisplayName string            `gorm:"size:128" json:"displayName"`
	Enabled     bool              `gorm:"index" json:"enabled"`
	Config      datatypes.JSONMap `gorm:"type:jsonb" json:"config"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewsRecord 入库的新闻条目，深度采集后补充正文
type NewsRecord struct {
	ID          string `gorm:"primaryKey;size:40" json:"id"`
	Title       string `gorm:"size:512" json:"title"`
	Summary     string `gorm:"size:600" json:"summary"`
	Source      string `gorm:"size:128;index" json:"source"`
	OriginalURL string `gorm:"size:1024;index" json:"original_url"`
	Cover       string `gorm:"size:1024" json:"cover"`
	Keyword     string `gorm:"size:128;index" json:"keyword"`
	// 正文已在抽取阶段按 rune 截断
	DeepContent   string     `gorm:"type:text" json:"deep_content,omitempty"`
	DeepCollected bool       `gorm:"index" json:"deep_collected"`
	DeepAt        *time.Time `json:"deepAt,omitempty"`
	CollectedAt   time.Time  `gorm:"index" json:"collectedAt"`
	// 日期 YYYY-MM-DD（东八区），用于按日期展示
	PublishedDate string `gorm:"size:10;index" json:"publishedDate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
