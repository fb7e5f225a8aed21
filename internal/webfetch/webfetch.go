// Package webfetch 基于 colly 的单页抓取：负责请求头、超时与状态码判断，
// 响应体交给 charset 包还原编码。每次调用使用独立的 Collector，不跨请求共享状态，也不自动重试。
package webfetch

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/LJTian/NewsDigest/internal/charset"
	"github.com/LJTian/NewsDigest/internal/failure"
)

// DefaultUserAgent 桌面浏览器 UA，规则未配置 UA 时使用
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.5845.97 Safari/537.36"

const defaultMaxBodySize = 10 << 20 // 10MB

// colly 在 Content-Type 带 charset 时会自行转码，这里把原始头挪走，编码统一交给 charset.Resolve
const originalContentType = "X-Original-Content-Type"

var baseTransport = http.DefaultTransport.(*http.Transport).Clone()

type rawCharsetTransport struct {
	base http.RoundTripper
}

func (t rawCharsetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		resp.Header.Set(originalContentType, ct)
		mediaType, _, perr := mime.ParseMediaType(ct)
		if perr != nil {
			mediaType = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		}
		resp.Header.Set("Content-Type", mediaType)
	}
	return resp, nil
}

// Page 一次抓取的结果
type Page struct {
	// URL 跟随跳转后的最终地址
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Text 按 charset 解析顺序解码响应体
func (p *Page) Text() string {
	if p == nil {
		return ""
	}
	return charset.Resolve(p.Body, p.ContentType)
}

// Fetcher 单页抓取器
type Fetcher struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int
}

// New 指定超时的抓取器
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{Timeout: timeout, UserAgent: DefaultUserAgent, MaxBodySize: defaultMaxBodySize}
}

// Get 抓取 rawURL；连接失败、超时与非 200 状态都返回 failure.KindTransport 错误
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) (*Page, error) {
	const op = "webfetch.get"

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, failure.Transport(op, rawURL, errors.New("unsupported url scheme"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.maxBodySize()),
	)
	c.WithTransport(rawCharsetTransport{base: baseTransport})
	if f.Timeout > 0 {
		c.SetRequestTimeout(f.Timeout)
	}
	// 非 2xx 也走 OnResponse，由下面统一判断状态码
	c.ParseHTTPErrorResponse = true

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Accept-Encoding") {
				continue
			}
			r.Headers.Set(k, v)
		}
	})

	var page *Page
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
		if r.Headers != nil {
			page.ContentType = r.Headers.Get(originalContentType)
		}
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, failure.Transport(op, rawURL, err)
	}
	if page == nil {
		return nil, failure.Transport(op, rawURL, errors.New("no response"))
	}
	if page.StatusCode != http.StatusOK {
		return page, failure.Status(op, rawURL, page.StatusCode)
	}
	return page, nil
}

func (f *Fetcher) maxBodySize() int {
	if f.MaxBodySize > 0 {
		return f.MaxBodySize
	}
	return defaultMaxBodySize
}
