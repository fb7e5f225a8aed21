package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

// Rule 站点抽取规则；选择器以 "/" 或 "(" 开头按 XPath 解析，否则按 CSS 解析
type Rule struct {
	ID              uint              `json:"id" yaml:"-"`
	SiteName        string            `json:"site_name" yaml:"site_name"`
	SiteDomain      string            `json:"site_domain" yaml:"site_domain"`
	TitleSelector   string            `json:"title_selector" yaml:"title_selector"`
	ContentSelector string            `json:"content_selector" yaml:"content_selector"`
	RequestHeaders  map[string]string `json:"request_headers" yaml:"request_headers"`
	Version         int               `json:"version" yaml:"-"`
}

func (r Rule) clone() Rule {
	c := r
	if r.RequestHeaders != nil {
		c.RequestHeaders = make(map[string]string, len(r.RequestHeaders))
		for k, v := range r.RequestHeaders {
			c.RequestHeaders[k] = v
		}
	}
	return c
}

// HasUserAgent 规则请求头中是否显式配置了 UA
func (r Rule) HasUserAgent() bool {
	for k, v := range r.RequestHeaders {
		if strings.EqualFold(k, "User-Agent") && strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Extractor 抓取文章页并抽取标题与正文
type Extractor struct {
	fetcher *webfetch.Fetcher
	rules   RuleStore
	logger  *zap.Logger
}

// NewExtractor rules 可以为 nil，此时不会回写规则
func NewExtractor(fetcher *webfetch.Fetcher, rules RuleStore, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, rules: rules, logger: logger}
}

// FetchGeneric 不使用规则，直接抓取并做启发式抽取；
// 传输失败或非 200 时返回空结果与对应错误
func (e *Extractor) FetchGeneric(ctx context.Context, pageURL string) (Result, error) {
	page, err := e.fetcher.Get(ctx, pageURL, map[string]string{"User-Agent": webfetch.DefaultUserAgent})
	if err != nil {
		e.logger.Info("generic extract fetch failed", zap.String("url", pageURL), zap.Error(err))
		return Result{}, err
	}
	res := Generic(page.Text())
	if res.Empty() {
		return res, failure.Empty("extract.generic", pageURL)
	}
	return res, nil
}

// WithRule 按规则抽取。抓取失败返回空结果；选择器引擎失败时退回宽松解析；
// 正文仍为空时，若规则未配置 UA 则先把默认 UA 写回规则，再对同一份 HTML 做启发式抽取
func (e *Extractor) WithRule(ctx context.Context, pageURL string, rule Rule) (Result, error) {
	hasUA := rule.HasUserAgent()
	headers := make(map[string]string, len(rule.RequestHeaders)+1)
	for k, v := range rule.RequestHeaders {
		headers[k] = v
	}
	if !hasUA {
		headers["User-Agent"] = webfetch.DefaultUserAgent
	}

	page, err := e.fetcher.Get(ctx, pageURL, headers)
	if err != nil {
		e.logger.Info("rule extract fetch failed",
			zap.String("url", pageURL), zap.String("site", rule.SiteName), zap.Error(err))
		return Result{}, err
	}
	doc := page.Text()

	res, perr := ApplyRule(doc, rule)
	if perr != nil {
		e.logger.Debug("selector engine failed, fallback to soup",
			zap.String("url", pageURL), zap.Error(perr))
		res = soupExtract(doc)
	}

	if res.Empty() {
		if !hasUA && e.rules != nil {
			if _, err := PatchRule(ctx, e.rules, rule, setDefaultUserAgent); err != nil {
				e.logger.Warn("persist default user-agent failed", zap.Uint("rule_id", rule.ID), zap.Error(err))
			}
		}
		g := Generic(doc)
		if res.Title == "" {
			res.Title = g.Title
		}
		res.Content = g.Content
	}

	if res.Empty() {
		return res, failure.Empty("extract.rule", pageURL)
	}
	return res, nil
}

func setDefaultUserAgent(r *Rule) bool {
	if r.HasUserAgent() {
		return false
	}
	if r.RequestHeaders == nil {
		r.RequestHeaders = map[string]string{}
	}
	r.RequestHeaders["User-Agent"] = webfetch.DefaultUserAgent
	return true
}

// ApplyRule 用规则的选择器从 HTML 中取标题与正文；选择器非法或文档无法解析时返回 KindParse 错误
func ApplyRule(doc string, rule Rule) (Result, error) {
	var (
		title, content string
		err            error
	)
	if isXPath(rule.TitleSelector) || isXPath(rule.ContentSelector) {
		title, content, err = applyXPath(doc, rule)
	} else {
		title, content, err = applyCSS(doc, rule)
	}
	if err != nil {
		return Result{}, failure.Parse("extract.selector", "", err)
	}
	return Result{Title: collapseSpaces(title), Content: CleanText(content)}, nil
}

func isXPath(sel string) bool {
	sel = strings.TrimSpace(sel)
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(") || strings.HasPrefix(sel, "./")
}

func applyCSS(doc string, rule Rule) (string, string, error) {
	for _, sel := range []string{rule.TitleSelector, rule.ContentSelector} {
		if sel == "" || isXPath(sel) {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return "", "", fmt.Errorf("css selector %q: %w", sel, err)
		}
	}

	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", "", err
	}
	d.Find(noiseSelectors).Remove()

	title := ""
	if rule.TitleSelector != "" {
		title = d.Find(rule.TitleSelector).First().Text()
	} else {
		title = d.Find("title").First().Text()
	}

	content := ""
	if rule.ContentSelector != "" {
		parts := make([]string, 0, 4)
		d.Find(rule.ContentSelector).Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		content = strings.Join(parts, "\n")
	}
	return title, content, nil
}

func applyXPath(doc string, rule Rule) (string, string, error) {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return "", "", err
	}
	noise, err := htmlquery.QueryAll(root, "//script|//style|//noscript")
	if err != nil {
		return "", "", err
	}
	for _, n := range noise {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	title, err := selectText(root, rule.TitleSelector, "//title")
	if err != nil {
		return "", "", err
	}
	content := ""
	if rule.ContentSelector != "" {
		if content, err = selectText(root, rule.ContentSelector, ""); err != nil {
			return "", "", err
		}
	}
	return title, content, nil
}

// selectText 单个选择器既可能是 XPath 也可能是 CSS（规则里混用时）
func selectText(root *html.Node, sel, def string) (string, error) {
	if sel == "" {
		sel = def
	}
	if sel == "" {
		return "", nil
	}
	if !isXPath(sel) {
		d := goquery.NewDocumentFromNode(root)
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return "", fmt.Errorf("css selector %q: %w", sel, err)
		}
		return d.Find(sel).Text(), nil
	}

	nodes, err := htmlquery.QueryAll(root, sel)
	if err != nil {
		return "", fmt.Errorf("xpath %q: %w", sel, err)
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if t := strings.TrimSpace(htmlquery.InnerText(n)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// ErrVersionConflict 规则在读取之后被其他请求修改
var ErrVersionConflict = errors.New("extraction rule version conflict")

// RuleStore 规则存储；SaveRule 只在存储中的版本与 r.Version 相同时写入并把版本加一
type RuleStore interface {
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id uint) (Rule, error)
	SaveRule(ctx context.Context, r Rule) error
}

const maxPatchAttempts = 3

// PatchRule 乐观并发地修改规则：冲突时重新读取并重放 mutate，mutate 返回 false 表示无需修改
func PatchRule(ctx context.Context, store RuleStore, rule Rule, mutate func(*Rule) bool) (Rule, error) {
	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		next := rule.clone()
		if !mutate(&next) {
			return rule, nil
		}
		err := store.SaveRule(ctx, next)
		if err == nil {
			next.Version++
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return rule, err
		}
		fresh, gerr := store.GetRule(ctx, rule.ID)
		if gerr != nil {
			return rule, gerr
		}
		rule = fresh
	}
	return rule, ErrVersionConflict
}
