// Package news 定义采集结果的统一结构，以及所有爬虫共用的清洗、降噪与去重逻辑。
package news

import "strings"

const (
	// PlaceholderCover 没有可用封面时的占位图
	PlaceholderCover = "https://dummyimage.com/242x162/18202D/ffffff&text=NEWS"
	NoSummary        = "无概要"
	UnknownSource    = "未知来源"
)

// Item 一条新闻摘要记录；JSON 字段名是对外（渲染/存储）的稳定契约
type Item struct {
	OriginalURL   string `json:"original_url"`
	Cover         string `json:"cover"`
	Source        string `json:"source"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	DeepContent   string `json:"deep_content,omitempty"`
	DeepCollected bool   `json:"deep_collected,omitempty"`
}

// Valid 标题与来源均非空
func (it Item) Valid() bool {
	return strings.TrimSpace(it.Title) != "" && strings.TrimSpace(it.Source) != ""
}

// Display 投影为展示结构，只保留五个基础字段
func (it Item) Display(defaultSource string) Item {
	src := it.Source
	if src == "" {
		src = defaultSource
	}
	return Item{
		OriginalURL: it.OriginalURL,
		Cover:       it.Cover,
		Source:      src,
		Title:       it.Title,
		Summary:     it.Summary,
	}
}

// DisplaySchema 批量投影
func DisplaySchema(items []Item, defaultSource string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.Display(defaultSource))
	}
	return out
}

// IsHTTPURL 是否为绝对 http(s) 地址
func IsHTTPURL(u string) bool {
	l := strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// EnsureCover 非绝对 http(s) 地址一律替换为占位图
func EnsureCover(u string) string {
	u = strings.TrimSpace(u)
	if IsHTTPURL(u) {
		return u
	}
	return PlaceholderCover
}
