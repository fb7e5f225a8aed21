package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/news"
)

// 摘要入库上限（按 rune），与存储层 varchar(600) 留出余量
const summaryLimit = 200

// ProcessedNews 是写入存储层前的统一结构
type ProcessedNews struct {
	ID          string
	Title       string
	URL         string
	Source      string
	Summary     string
	Cover       string
	Keyword     string
	CollectedAt time.Time
}

// SimpleProcessor 做最基础的数据清洗与 ID 生成
type SimpleProcessor struct {
	now func() time.Time
}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{now: time.Now}
}

// Process 以原文链接的 sha1 作为 ID 去重；没有链接的条目用来源+标题生成 ID
func (p *SimpleProcessor) Process(items []news.Item, keyword string) []ProcessedNews {
	out := make([]ProcessedNews, 0, len(items))
	seen := make(map[string]struct{})
	now := p.now()

	for _, it := range items {
		id := RecordID(it)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		summary := strings.TrimSpace(it.Summary)
		if summary == "" || summary == news.NoSummary {
			summary = strings.TrimSpace(it.Title)
		}

		out = append(out, ProcessedNews{
			ID:          id,
			Title:       strings.TrimSpace(it.Title),
			URL:         it.OriginalURL,
			Source:      it.Source,
			Summary:     truncateRunes(summary, summaryLimit),
			Cover:       it.Cover,
			Keyword:     strings.TrimSpace(keyword),
			CollectedAt: now,
		})
	}

	return out
}

// RecordID 新闻记录的稳定 ID
func RecordID(it news.Item) string {
	if u := strings.TrimSpace(it.OriginalURL); u != "" {
		return hashURL(u)
	}
	return hashURL(it.Source + "|" + strings.ToLower(strings.TrimSpace(it.Title)))
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// truncateRunes 超出 limit 时截断并追加省略号
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}
