package collector

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

const (
	searchDefaultKeyword = "新闻"
	searchPageSize       = 10
	// 一页清洗后少于这个数，认为后面已经没有结果
	searchMinPageResults = 5
	searchTitleMinLen    = 6
)

// SearchEngineOptions 百度新闻搜索的可配置项
type SearchEngineOptions struct {
	BaseURL    string            `mapstructure:"base_url"`
	Headers    map[string]string `mapstructure:"headers"`
	MaxPages   int               `mapstructure:"max_pages"`
	DelayMinMs int               `mapstructure:"delay_min_ms"`
	DelayMaxMs int               `mapstructure:"delay_max_ms"`
}

func defaultSearchEngineOptions() SearchEngineOptions {
	return SearchEngineOptions{
		BaseURL:    "https://www.baidu.com/s",
		MaxPages:   5,
		DelayMinMs: 1000,
		DelayMaxMs: 2000,
		Headers: map[string]string{
			"User-Agent":                webfetch.DefaultUserAgent,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language":           "zh-CN,zh;q=0.9",
			"Cache-Control":             "no-cache",
			"Pragma":                    "no-cache",
			"Sec-Ch-Ua":                 `"Not)A;Brand";v="24", "Chromium";v="116"`,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"Windows"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	}
}

// SearchEngineCrawler 百度新闻搜索：每页 10 条，最多翻 MaxPages 页
type SearchEngineCrawler struct {
	opts    SearchEngineOptions
	fetcher *webfetch.Fetcher
	logger  *zap.Logger
	cleaner news.Cleaner
}

func NewSearchEngineCrawler(opts SearchEngineOptions, deps Deps) *SearchEngineCrawler {
	deps = deps.withDefaults()
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.DelayMinMs < 0 {
		opts.DelayMinMs = 0
	}
	return &SearchEngineCrawler{
		opts:    opts,
		fetcher: deps.Fetcher,
		logger:  deps.Logger.With(zap.String("crawler", "baidu")),
		cleaner: news.Cleaner{DefaultSource: news.UnknownSource, MinTitleLen: searchTitleMinLen},
	}
}

func newSearchEngineFactory(raw map[string]any, deps Deps) (Crawler, error) {
	opts := defaultSearchEngineOptions()
	if err := decodeOptions("baidu", raw, &opts); err != nil {
		return nil, err
	}
	return NewSearchEngineCrawler(opts, deps), nil
}

func (c *SearchEngineCrawler) Name() string {
	return "baidu"
}

func (c *SearchEngineCrawler) FetchData(ctx context.Context, keyword string, maxCount int) Result {
	return collect(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *SearchEngineCrawler) IterData(ctx context.Context, keyword string, maxCount int) iter.Seq[news.Item] {
	return iterate(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *SearchEngineCrawler) ToDisplaySchema(items []news.Item) []news.Item {
	return news.DisplaySchema(items, news.UnknownSource)
}

// feed 供其他爬虫做站内搜索补充：条目先按搜索引擎的规则清洗，再交给 into
func (c *SearchEngineCrawler) feed(ctx context.Context, query string, into *emitter) []error {
	inner := newEmitter(c.cleaner, c.opts.MaxPages*searchPageSize, into.emit)
	return c.walk(ctx, query, inner)
}

func (c *SearchEngineCrawler) walk(ctx context.Context, keyword string, em *emitter) []error {
	if strings.TrimSpace(keyword) == "" {
		keyword = searchDefaultKeyword
	}

	var errs []error
	for page := 0; page < c.opts.MaxPages && !em.done(); page++ {
		if page > 0 && !sleep(ctx, jitter(c.opts.DelayMinMs, c.opts.DelayMaxMs)) {
			errs = append(errs, failure.Transport("baidu.search", c.opts.BaseURL, ctx.Err()))
			break
		}

		items, err := c.fetchPage(ctx, keyword, page)
		if err != nil {
			c.logger.Info("search page failed", zap.Int("page", page+1), zap.Error(err))
			errs = append(errs, err)
			break
		}
		cleaned := c.cleaner.Clean(items)
		c.logger.Debug("search page parsed",
			zap.Int("page", page+1), zap.Int("raw", len(items)), zap.Int("kept", len(cleaned)))
		if len(cleaned) == 0 {
			break
		}
		for _, it := range cleaned {
			if !em.emit(it) {
				return errs
			}
		}
		if len(cleaned) < searchMinPageResults {
			break
		}
	}
	return errs
}

func (c *SearchEngineCrawler) pageURL(keyword string, page int) string {
	q := url.Values{}
	q.Set("rtt", "1")
	q.Set("bsst", "1")
	q.Set("cl", "2")
	q.Set("tn", "news")
	q.Set("rsv_dl", "ns_pc")
	q.Set("word", keyword)
	q.Set("pn", strconv.Itoa(page*searchPageSize))

	sep := "?"
	if strings.Contains(c.opts.BaseURL, "?") {
		sep = "&"
	}
	return c.opts.BaseURL + sep + q.Encode()
}

func (c *SearchEngineCrawler) fetchPage(ctx context.Context, keyword string, page int) ([]news.Item, error) {
	p, err := c.fetcher.Get(ctx, c.pageURL(keyword, page), c.opts.Headers)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(p)
	if err != nil {
		return nil, err
	}
	return parseSearchResults(doc), nil
}

// parseSearchResults 页面结构经常调整，各字段都按选择器顺序逐个兜底
func parseSearchResults(doc *goquery.Document) []news.Item {
	containers := doc.Find("div.result-op.c-container")
	if containers.Length() == 0 {
		containers = doc.Find(".c-container")
	}

	items := make([]news.Item, 0, containers.Length())
	containers.Each(func(_ int, s *goquery.Selection) {
		a := s.Find("h3 a").First()
		if a.Length() == 0 {
			return
		}
		title := strings.TrimSpace(a.Text())
		if title == "" || title == "无标题" {
			return
		}
		href, _ := a.Attr("href")

		summary := news.NoSummary
		if n := s.Find(`span[aria-label^="摘要"]`).First(); n.Length() > 0 {
			summary = strings.TrimSpace(n.Text())
		} else if n := s.Find(".c-span-last").First(); n.Length() > 0 {
			summary = strings.TrimSpace(n.Text())
		}

		source := news.UnknownSource
		if n := s.Find(`span[aria-label^="新闻来源"]`).First(); n.Length() > 0 {
			source = strings.TrimSpace(n.Text())
		} else if n := s.Find(".c-color-gray").First(); n.Length() > 0 {
			source = strings.TrimSpace(n.Text())
		}

		items = append(items, news.Item{
			Title:       title,
			Summary:     summary,
			Source:      source,
			OriginalURL: strings.TrimSpace(href),
			Cover:       searchCover(s),
		})
	})
	return items
}

// searchCover 取第一张不是来源小图标的图片
func searchCover(s *goquery.Selection) string {
	cover := ""
	s.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if isSourceIcon(img) {
			return true
		}
		if src, _ := img.Attr("src"); strings.TrimSpace(src) != "" {
			cover = strings.TrimSpace(src)
			return false
		}
		return true
	})
	return cover
}

// isSourceIcon 向上看三层祖先，有 news-source / source-icon 类名即为来源图标
func isSourceIcon(img *goquery.Selection) bool {
	p := img.Parent()
	for i := 0; i < 3 && p.Length() > 0; i++ {
		class, _ := p.Attr("class")
		for _, c := range strings.Fields(class) {
			if strings.Contains(c, "news-source") || strings.Contains(c, "source-icon") {
				return true
			}
		}
		p = p.Parent()
	}
	return false
}
