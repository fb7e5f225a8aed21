// Package collector 实现各新闻源爬虫以及按 key 创建爬虫的注册表。
package collector

import (
	"context"
	"iter"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

const (
	// DefaultMaxCount 调用方未指定条数时的默认值
	DefaultMaxCount = 30

	crawlTimeout   = 12 * time.Second
	resolveTimeout = 8 * time.Second
)

// Crawler 所有新闻源共用的能力集合
type Crawler interface {
	Name() string
	// FetchData 一次性采集，失败原因保留在 Result.Failures 中
	FetchData(ctx context.Context, keyword string, maxCount int) Result
	// IterData 惰性采集：消费一条才推进一步，调用方提前 break 即停止后续请求
	IterData(ctx context.Context, keyword string, maxCount int) iter.Seq[news.Item]
	ToDisplaySchema(items []news.Item) []news.Item
}

// Status 一次采集的整体结果
type Status string

const (
	StatusOK      Status = "ok"
	StatusEmpty   Status = "empty"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result 批量采集结果：拿到的条目，以及过程中被降级处理的错误
type Result struct {
	Items    []news.Item
	Failures []error
}

func (r Result) Status() Status {
	switch {
	case len(r.Items) > 0 && len(r.Failures) == 0:
		return StatusOK
	case len(r.Items) > 0:
		return StatusPartial
	case len(r.Failures) > 0:
		return StatusFailed
	default:
		return StatusEmpty
	}
}

func (r *Result) fail(err error) {
	if err != nil {
		r.Failures = append(r.Failures, err)
	}
}

// Deps 爬虫运行时依赖，由注册表注入
type Deps struct {
	Fetcher *webfetch.Fetcher
	// Resolver 用于跟随搜索引擎跳转链接，超时更短
	Resolver *webfetch.Fetcher
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Fetcher == nil {
		d.Fetcher = webfetch.New(crawlTimeout)
	}
	if d.Resolver == nil {
		d.Resolver = webfetch.New(resolveTimeout)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// emitter 对一次采集里的所有条目做清洗、去重与条数上限控制
type emitter struct {
	cleaner news.Cleaner
	limit   int
	sent    int
	seen    map[string]struct{}
	yield   func(news.Item) bool
	stopped bool
}

func newEmitter(c news.Cleaner, limit int, yield func(news.Item) bool) *emitter {
	return &emitter{cleaner: c, limit: limit, seen: make(map[string]struct{}), yield: yield}
}

// emit 返回 false 表示不应再继续采集
func (e *emitter) emit(it news.Item) bool {
	if e.done() {
		return false
	}
	cleaned, ok := e.cleaner.CleanOne(it)
	if !ok {
		return true
	}
	key := strings.ToLower(cleaned.Title)
	if _, dup := e.seen[key]; dup {
		return true
	}
	e.seen[key] = struct{}{}
	e.sent++
	if !e.yield(cleaned) {
		e.stopped = true
		return false
	}
	return !e.done()
}

func (e *emitter) done() bool {
	return e.stopped || e.sent >= e.limit
}

func (e *emitter) remaining() int {
	if e.done() {
		return 0
	}
	return e.limit - e.sent
}

// collect 把惰性采集过程收拢为批量结果
func collect(limit int, walk func(*emitter) []error, c news.Cleaner) Result {
	var res Result
	em := newEmitter(c, limit, func(it news.Item) bool {
		res.Items = append(res.Items, it)
		return true
	})
	for _, err := range walk(em) {
		res.fail(err)
	}
	return res
}

func iterate(limit int, walk func(*emitter) []error, c news.Cleaner) iter.Seq[news.Item] {
	return func(yield func(news.Item) bool) {
		walk(newEmitter(c, limit, yield))
	}
}

func normalizeMax(maxCount int) int {
	if maxCount <= 0 {
		return DefaultMaxCount
	}
	return maxCount
}

func parseHTML(page *webfetch.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Text()))
	if err != nil {
		return nil, failure.Parse("collector.parse", page.URL, err)
	}
	return doc, nil
}

// absURL 以 base 为基准补全相对地址；"//" 开头的协议相对地址补 https
func absURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || news.IsHTTPURL(ref) {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// sleep 可被 ctx 打断的等待
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func jitter(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.IntN(maxMs-minMs+1)) * time.Millisecond
}

func siteQuery(domain, keyword string) string {
	return strings.TrimSpace("site:" + domain + " " + strings.TrimSpace(keyword))
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func browserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      webfetch.DefaultUserAgent,
		"Accept-Language": "zh-CN,zh;q=0.9",
	}
}
