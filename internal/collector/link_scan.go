package collector

import (
	"context"
	"iter"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

// LinkScanOptions 链接扫描爬虫配置
type LinkScanOptions struct {
	SearchPage  string              `mapstructure:"search_page"`
	ChannelURL  string              `mapstructure:"channel_url"`
	Domain      string              `mapstructure:"domain"`
	SourceName  string              `mapstructure:"source_name"`
	MinTitleLen int                 `mapstructure:"min_title_len"`
	Headers     map[string]string   `mapstructure:"headers"`
	Search      SearchEngineOptions `mapstructure:"search"`
}

func defaultLinkScanOptions() LinkScanOptions {
	return LinkScanOptions{
		SearchPage:  "https://so.ifeng.com/?q=",
		ChannelURL:  "https://news.ifeng.com/",
		Domain:      "ifeng.com",
		SourceName:  "凤凰网",
		MinTitleLen: 6,
		Headers:     browserHeaders(),
		Search:      defaultSearchEngineOptions(),
	}
}

// LinkScanCrawler 扫描凤凰网搜索页/频道页上指向本站的链接，锚文本即标题；
// 不够数时用站内搜索补齐，并把搜索引擎的跳转链接解析成真实地址
type LinkScanCrawler struct {
	opts     LinkScanOptions
	fetcher  *webfetch.Fetcher
	resolver *webfetch.Fetcher
	search   *SearchEngineCrawler
	logger   *zap.Logger
	cleaner  news.Cleaner
}

func NewLinkScanCrawler(opts LinkScanOptions, deps Deps) *LinkScanCrawler {
	deps = deps.withDefaults()
	if opts.MinTitleLen <= 0 {
		opts.MinTitleLen = 6
	}
	if opts.SourceName == "" {
		opts.SourceName = "凤凰网"
	}
	return &LinkScanCrawler{
		opts:     opts,
		fetcher:  deps.Fetcher,
		resolver: deps.Resolver,
		search:   NewSearchEngineCrawler(opts.Search, deps),
		logger:   deps.Logger.With(zap.String("crawler", "ifeng")),
		cleaner:  news.Cleaner{DefaultSource: opts.SourceName, MinTitleLen: opts.MinTitleLen},
	}
}

func newLinkScanFactory(raw map[string]any, deps Deps) (Crawler, error) {
	opts := defaultLinkScanOptions()
	if err := decodeOptions("ifeng", raw, &opts); err != nil {
		return nil, err
	}
	return NewLinkScanCrawler(opts, deps), nil
}

func (c *LinkScanCrawler) Name() string {
	return "ifeng"
}

func (c *LinkScanCrawler) FetchData(ctx context.Context, keyword string, maxCount int) Result {
	return collect(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *LinkScanCrawler) IterData(ctx context.Context, keyword string, maxCount int) iter.Seq[news.Item] {
	return iterate(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *LinkScanCrawler) ToDisplaySchema(items []news.Item) []news.Item {
	return news.DisplaySchema(items, c.opts.SourceName)
}

func (c *LinkScanCrawler) entryURL(kw string) string {
	if kw == "" {
		return c.opts.ChannelURL
	}
	return c.opts.SearchPage + url.QueryEscape(kw)
}

func (c *LinkScanCrawler) walk(ctx context.Context, keyword string, em *emitter) []error {
	kw := strings.TrimSpace(keyword)
	var errs []error

	items, err := c.scan(ctx, c.entryURL(kw))
	if err != nil {
		c.logger.Info("link scan failed", zap.Error(err))
		errs = append(errs, err)
	}
	for _, it := range items {
		if !em.emit(it) {
			return errs
		}
	}
	if em.done() {
		return errs
	}

	// 站内搜索补齐
	relabel := newEmitter(c.search.cleaner, c.search.opts.MaxPages*searchPageSize, func(it news.Item) bool {
		return em.emit(c.relabel(ctx, it))
	})
	errs = append(errs, c.search.walk(ctx, siteQuery(c.opts.Domain, kw), relabel)...)
	return errs
}

func (c *LinkScanCrawler) scan(ctx context.Context, target string) ([]news.Item, error) {
	p, err := c.fetcher.Get(ctx, target, c.opts.Headers)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(p)
	if err != nil {
		return nil, err
	}

	var items []news.Item
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !strings.Contains(href, c.opts.Domain) {
			return
		}
		title := strings.TrimSpace(a.Text())
		if utf8.RuneCountInString(title) < c.opts.MinTitleLen {
			return
		}
		items = append(items, news.Item{
			Title:       title,
			Summary:     news.NoSummary,
			OriginalURL: absURL(p.URL, href),
			Source:      c.opts.SourceName,
		})
	})
	return items, nil
}

// relabel 搜索结果若是百度跳转链接则解析最终地址；落到本站的统一标成本站来源
func (c *LinkScanCrawler) relabel(ctx context.Context, it news.Item) news.Item {
	u := strings.TrimSpace(it.OriginalURL)
	if strings.Contains(u, "baidu.com") {
		u = c.resolveFinal(ctx, u)
	}
	it.OriginalURL = u
	if strings.Contains(u, c.opts.Domain) {
		it.Source = c.opts.SourceName
	} else if it.Source == "" {
		it.Source = c.opts.SourceName
	}
	return it
}

func (c *LinkScanCrawler) resolveFinal(ctx context.Context, u string) string {
	p, err := c.resolver.Get(ctx, u, c.opts.Headers)
	if p != nil && p.URL != "" {
		return p.URL
	}
	if err != nil {
		c.logger.Debug("resolve redirect failed", zap.String("url", u), zap.Error(err))
	}
	return u
}
