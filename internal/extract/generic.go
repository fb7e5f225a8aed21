// Package extract 从任意文章页中恢复标题与正文。
//
// Generic 是不依赖站点结构的启发式抽取；Extractor.WithRule 按站点规则的选择器抽取，
// 失败时退回宽松解析与 Generic；Matcher 负责为一条记录挑选规则。
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxContentRunes 正文上限，控制下游 AI 提示词与存储成本
const MaxContentRunes = 15000

// Result 抽取结果；失败时两个字段均为空
type Result struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Empty 正文为空
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Content) == ""
}

// 按顺序尝试的“像正文”的容器
var contentSelectors = []string{
	"article",
	"[id*=content]",
	"[class*=content]",
	"[id*=article]",
	"[class*=article]",
	"[id*=detail]",
	"[class*=detail]",
	"[role=article]",
}

const noiseSelectors = "script, style, noscript"

var (
	zeroWidthRe   = regexp.MustCompile(`[\x{200b}\x{200c}\x{200d}\x{2060}\x{feff}]`)
	lineEdgeRe    = regexp.MustCompile(`[ \x{00a0}\x{3000}]*\n[ \x{00a0}\x{3000}]*`)
	manyNewlineRe = regexp.MustCompile(`\n{3,}`)
	manySpaceRe   = regexp.MustCompile(`[ \f\v\x{00a0}\x{3000}]{2,}`)
)

// Generic 启发式正文抽取：取所有候选容器中文本最长者，没有候选时用整页文本
func Generic(html string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}
	}
	return genericFromDoc(doc)
}

func genericFromDoc(doc *goquery.Document) Result {
	doc.Find(noiseSelectors).Remove()

	title := collapseSpaces(doc.Find("title").First().Text())

	best, bestLen := "", 0
	for _, sel := range contentSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			t := CleanText(s.Text())
			if n := utf8.RuneCountInString(t); n > bestLen {
				best, bestLen = t, n
			}
		})
	}

	if best == "" {
		body := doc.Find("body")
		if body.Length() > 0 {
			best = CleanText(body.Text())
		} else {
			best = CleanText(doc.Text())
		}
	}

	return Result{Title: title, Content: best}
}

// CleanText 正文后处理：去零宽字符、制表符/回车转空格、3 个以上换行压成 2 个、
// 连续空白压成一个空格，最后截断到 MaxContentRunes
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("\t", " ", "\r", " ").Replace(s)
	s = lineEdgeRe.ReplaceAllString(s, "\n")
	s = manyNewlineRe.ReplaceAllString(s, "\n\n")
	s = manySpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, MaxContentRunes)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	rs := []rune(s)
	return string(rs[:limit])
}
