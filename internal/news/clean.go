package news

import (
	"strings"
	"unicode/utf8"

	"github.com/LJTian/NewsDigest/internal/charset"
)

const (
	// MinTitleLen 标题等短字段的最小长度
	MinTitleLen = 4
	// MinBodyLen 摘要、正文相关字段的最小长度
	MinBodyLen = 6

	minValidRatio = 0.4
)

var zeroWidth = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
)

// Sanitize 去掉零宽字符，空白与换行合并为单个空格
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	t := zeroWidth.Replace(text)
	return strings.Join(strings.Fields(t), " ")
}

// IsNoise 过短，或中文/字母/数字占比低于 0.4 的片段视为噪声（菜单、标点残留等）
func IsNoise(text string, minLen int) bool {
	t := Sanitize(text)
	total := utf8.RuneCountInString(t)
	if total == 0 || total < minLen {
		return true
	}
	valid := 0
	for _, r := range t {
		if isMeaningful(r) {
			valid++
		}
	}
	return float64(valid)/float64(total) < minValidRatio
}

func isMeaningful(r rune) bool {
	switch {
	case r >= 0x4e00 && r <= 0x9fff:
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return false
}

// Dedupe 按标题（忽略大小写）去重，保留首次出现且保持原顺序
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(it.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Cleaner 每个爬虫在返回前都要经过的规范化流程
type Cleaner struct {
	DefaultSource string
	// MinTitleLen 为 0 时使用 MinTitleLen 常量
	MinTitleLen int
}

// Clean 清洗一批原始条目：噪声标题丢弃、摘要兜底、标题去重、URL/封面规范化
func (c Cleaner) Clean(items []Item) []Item {
	minTitle := c.MinTitleLen
	if minTitle <= 0 {
		minTitle = MinTitleLen
	}
	defSource := c.DefaultSource
	if defSource == "" {
		defSource = UnknownSource
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		cleaned, ok := c.cleanOne(it, minTitle, defSource)
		if !ok {
			continue
		}
		key := strings.ToLower(cleaned.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// CleanOne 单条清洗，用于流式场景；不做跨条目去重
func (c Cleaner) CleanOne(it Item) (Item, bool) {
	minTitle := c.MinTitleLen
	if minTitle <= 0 {
		minTitle = MinTitleLen
	}
	defSource := c.DefaultSource
	if defSource == "" {
		defSource = UnknownSource
	}
	return c.cleanOne(it, minTitle, defSource)
}

func (c Cleaner) cleanOne(it Item, minTitle int, defSource string) (Item, bool) {
	title := Sanitize(charset.RepairMojibake(it.Title))
	if IsNoise(title, minTitle) {
		return Item{}, false
	}
	summary := Sanitize(charset.RepairMojibake(it.Summary))
	if IsNoise(summary, MinBodyLen) {
		summary = NoSummary
	}
	source := Sanitize(it.Source)
	if source == "" {
		source = defSource
	}
	u := strings.TrimSpace(it.OriginalURL)
	if !IsHTTPURL(u) {
		u = ""
	}
	return Item{
		OriginalURL:   u,
		Cover:         EnsureCover(it.Cover),
		Source:        source,
		Title:         title,
		Summary:       summary,
		DeepContent:   it.DeepContent,
		DeepCollected: it.DeepCollected,
	}, true
}
