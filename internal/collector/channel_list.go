package collector

import (
	"context"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

// ChannelListOptions 频道列表页爬虫配置
type ChannelListOptions struct {
	ListURL     string              `mapstructure:"list_url"`
	Headers     map[string]string   `mapstructure:"headers"`
	SourceName  string              `mapstructure:"source_name"`
	SiteDomains []string            `mapstructure:"site_domains"`
	Search      SearchEngineOptions `mapstructure:"search"`
}

func defaultChannelListOptions() ChannelListOptions {
	return ChannelListOptions{
		ListURL:     "https://sc.news.cn/scyw.htm",
		Headers:     browserHeaders(),
		SourceName:  "新华网",
		SiteDomains: []string{"news.cn", "xinhuanet.com"},
		Search:      defaultSearchEngineOptions(),
	}
}

// ChannelListCrawler 新华网四川频道列表；列表结构容易变化，始终追加两次站内搜索
type ChannelListCrawler struct {
	opts    ChannelListOptions
	fetcher *webfetch.Fetcher
	search  *SearchEngineCrawler
	logger  *zap.Logger
	cleaner news.Cleaner
}

func NewChannelListCrawler(opts ChannelListOptions, deps Deps) *ChannelListCrawler {
	deps = deps.withDefaults()
	if opts.SourceName == "" {
		opts.SourceName = "新华网"
	}
	return &ChannelListCrawler{
		opts:    opts,
		fetcher: deps.Fetcher,
		search:  NewSearchEngineCrawler(opts.Search, deps),
		logger:  deps.Logger.With(zap.String("crawler", "xinhua")),
		cleaner: news.Cleaner{DefaultSource: opts.SourceName},
	}
}

func newChannelListFactory(raw map[string]any, deps Deps) (Crawler, error) {
	opts := defaultChannelListOptions()
	if err := decodeOptions("xinhua", raw, &opts); err != nil {
		return nil, err
	}
	return NewChannelListCrawler(opts, deps), nil
}

func (c *ChannelListCrawler) Name() string {
	return "xinhua"
}

func (c *ChannelListCrawler) FetchData(ctx context.Context, keyword string, maxCount int) Result {
	return collect(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *ChannelListCrawler) IterData(ctx context.Context, keyword string, maxCount int) iter.Seq[news.Item] {
	return iterate(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *ChannelListCrawler) ToDisplaySchema(items []news.Item) []news.Item {
	return news.DisplaySchema(items, c.opts.SourceName)
}

func (c *ChannelListCrawler) walk(ctx context.Context, keyword string, em *emitter) []error {
	kw := strings.TrimSpace(keyword)
	var errs []error

	items, err := c.fetchList(ctx)
	if err != nil {
		c.logger.Info("channel list failed", zap.String("url", c.opts.ListURL), zap.Error(err))
		errs = append(errs, err)
	}
	for _, it := range items {
		if kw != "" && !strings.Contains(it.Title, kw) && !strings.Contains(it.Summary, kw) {
			continue
		}
		if !em.emit(it) {
			return errs
		}
	}

	for _, domain := range c.opts.SiteDomains {
		if em.done() {
			break
		}
		errs = append(errs, c.search.feed(ctx, siteQuery(domain, kw), em)...)
	}
	return errs
}

func (c *ChannelListCrawler) fetchList(ctx context.Context) ([]news.Item, error) {
	p, err := c.fetcher.Get(ctx, c.opts.ListURL, c.opts.Headers)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(p)
	if err != nil {
		return nil, err
	}
	return parseChannelList(doc, p.URL, c.opts.SourceName), nil
}

func parseChannelList(doc *goquery.Document, base, source string) []news.Item {
	lis := doc.Find("div.scpd_page_box li")
	if lis.Length() == 0 {
		lis = doc.Find("li")
	}

	items := make([]news.Item, 0, lis.Length())
	lis.Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		if a.Length() == 0 {
			return
		}
		href, _ := a.Attr("href")

		title := ""
		for _, sel := range []string{"dt", "h3", "span", "a"} {
			if n := li.Find(sel).First(); n.Length() > 0 {
				if title = strings.TrimSpace(n.Text()); title != "" {
					break
				}
			}
		}
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}

		summary := ""
		dd := li.Find("dd").First()
		if dd.Length() == 0 {
			dd = li.Find("p").First()
		}
		if dd.Length() > 0 {
			summary = strings.TrimSpace(dd.Text())
		}
		if summary == "" {
			summary = news.NoSummary
		}

		cover := ""
		img := li.Find("img.scpd_auto_pic").First()
		if img.Length() == 0 {
			img = li.Find("img").First()
		}
		if img.Length() > 0 {
			src, _ := img.Attr("src")
			if src == "" {
				src, _ = img.Attr("data-src")
			}
			cover = absURL(base, src)
		}

		items = append(items, news.Item{
			Title:       title,
			Summary:     summary,
			Cover:       cover,
			OriginalURL: absURL(base, href),
			Source:      source,
		})
	})
	return items
}
