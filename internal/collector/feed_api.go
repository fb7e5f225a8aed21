package collector

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

// FeedAPIOptions 滚动新闻接口配置；config_json 里的 pageid/lid 可以是字符串
type FeedAPIOptions struct {
	API        string              `mapstructure:"api"`
	PageID     int                 `mapstructure:"pageid"`
	LID        int                 `mapstructure:"lid"`
	PageSize   int                 `mapstructure:"page_size"`
	MaxPages   int                 `mapstructure:"max_pages"`
	Headers    map[string]string   `mapstructure:"headers"`
	SourceName string              `mapstructure:"source_name"`
	SiteDomain string              `mapstructure:"site_domain"`
	Search     SearchEngineOptions `mapstructure:"search"`
}

func defaultFeedAPIOptions() FeedAPIOptions {
	return FeedAPIOptions{
		API:        "https://feed.mix.sina.com.cn/api/roll/get",
		PageID:     153,
		LID:        2509,
		PageSize:   50,
		MaxPages:   5,
		Headers:    browserHeaders(),
		SourceName: "新浪网",
		SiteDomain: "sina.com.cn",
		Search:     defaultSearchEngineOptions(),
	}
}

type feedResponse struct {
	Result struct {
		Data []feedEntry `json:"data"`
	} `json:"result"`
}

type feedEntry struct {
	Title     string          `json:"title"`
	Intro     string          `json:"intro"`
	URL       string          `json:"url"`
	MediaName string          `json:"media_name"`
	Images    json.RawMessage `json:"images"`
}

type feedImage struct {
	ImgURL string `json:"img_url"`
}

func (e feedEntry) cover() string {
	if len(e.Images) == 0 {
		return ""
	}
	var imgs []feedImage
	if err := json.Unmarshal(e.Images, &imgs); err != nil || len(imgs) == 0 {
		return ""
	}
	return strings.TrimSpace(imgs[0].ImgURL)
}

// FeedAPICrawler 新浪滚动新闻 JSON 接口，关键词在本地过滤；一条都没有时改用站内搜索
type FeedAPICrawler struct {
	opts    FeedAPIOptions
	fetcher *webfetch.Fetcher
	search  *SearchEngineCrawler
	logger  *zap.Logger
	cleaner news.Cleaner
}

func NewFeedAPICrawler(opts FeedAPIOptions, deps Deps) *FeedAPICrawler {
	deps = deps.withDefaults()
	if opts.PageSize <= 0 || opts.PageSize > 50 {
		opts.PageSize = 50
	}
	if opts.MaxPages <= 0 || opts.MaxPages > 5 {
		opts.MaxPages = 5
	}
	if opts.SourceName == "" {
		opts.SourceName = "新浪网"
	}
	return &FeedAPICrawler{
		opts:    opts,
		fetcher: deps.Fetcher,
		search:  NewSearchEngineCrawler(opts.Search, deps),
		logger:  deps.Logger.With(zap.String("crawler", "sina")),
		cleaner: news.Cleaner{DefaultSource: opts.SourceName},
	}
}

func newFeedAPIFactory(raw map[string]any, deps Deps) (Crawler, error) {
	opts := defaultFeedAPIOptions()
	if err := decodeOptions("sina", raw, &opts); err != nil {
		return nil, err
	}
	return NewFeedAPICrawler(opts, deps), nil
}

func (c *FeedAPICrawler) Name() string {
	return "sina"
}

func (c *FeedAPICrawler) FetchData(ctx context.Context, keyword string, maxCount int) Result {
	return collect(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *FeedAPICrawler) IterData(ctx context.Context, keyword string, maxCount int) iter.Seq[news.Item] {
	return iterate(normalizeMax(maxCount), func(em *emitter) []error {
		return c.walk(ctx, keyword, em)
	}, c.cleaner)
}

func (c *FeedAPICrawler) ToDisplaySchema(items []news.Item) []news.Item {
	return news.DisplaySchema(items, c.opts.SourceName)
}

func (c *FeedAPICrawler) walk(ctx context.Context, keyword string, em *emitter) []error {
	kw := strings.TrimSpace(keyword)
	var errs []error

pages:
	for page := 1; page <= c.opts.MaxPages && !em.done(); page++ {
		entries, err := c.fetchPage(ctx, page, min(c.opts.PageSize, em.remaining()))
		if err != nil {
			c.logger.Info("feed page failed", zap.Int("page", page), zap.Error(err))
			errs = append(errs, err)
			break
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			title := strings.TrimSpace(e.Title)
			intro := strings.TrimSpace(e.Intro)
			if kw != "" && !strings.Contains(title, kw) && !strings.Contains(intro, kw) {
				continue
			}
			source := strings.TrimSpace(e.MediaName)
			if source == "" {
				source = c.opts.SourceName
			}
			if intro == "" {
				intro = news.NoSummary
			}
			if !em.emit(news.Item{
				Title:       title,
				Summary:     intro,
				Source:      source,
				OriginalURL: strings.TrimSpace(e.URL),
				Cover:       e.cover(),
			}) {
				break pages
			}
		}
	}

	if em.sent == 0 && !em.stopped {
		c.logger.Debug("feed yielded nothing, fallback to site search", zap.String("keyword", kw))
		errs = append(errs, c.search.feed(ctx, siteQuery(c.opts.SiteDomain, kw), em)...)
	}
	return errs
}

func (c *FeedAPICrawler) fetchPage(ctx context.Context, page, num int) ([]feedEntry, error) {
	q := url.Values{}
	q.Set("pageid", strconv.Itoa(c.opts.PageID))
	q.Set("lid", strconv.Itoa(c.opts.LID))
	q.Set("num", strconv.Itoa(num))
	q.Set("page", strconv.Itoa(page))
	target := c.opts.API + "?" + q.Encode()

	p, err := c.fetcher.Get(ctx, target, c.opts.Headers)
	if err != nil {
		return nil, err
	}
	var resp feedResponse
	if err := json.Unmarshal(p.Body, &resp); err != nil {
		return nil, failure.Parse("sina.feed", target, err)
	}
	return resp.Result.Data, nil
}
