package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
)

// 站内搜索兜底使用的数据源
const siteSearchSource = "baidu"

const (
	strategyGeneric    = "generic"
	strategyRule       = "rule"
	strategySiteSearch = "site_search"
)

// DeepExtract 对任意 URL 做不带规则的抽取；任何失败都返回空结果，不报错
func (s *Service) DeepExtract(ctx context.Context, pageURL string) extract.Result {
	pageURL = strings.TrimSpace(pageURL)
	if !news.IsHTTPURL(pageURL) {
		return extract.Result{}
	}
	if s.cache != nil {
		if res, ok := s.cache.CachedExtraction(ctx, pageURL); ok {
			return res
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	res, err := s.extractor.FetchGeneric(ctx, pageURL)
	s.metrics.ObserveExtraction(strategyGeneric, err == nil)
	if err != nil {
		s.logger.Info("deep extract failed", zap.String("url", pageURL),
			zap.String("kind", string(failure.KindOf(err))), zap.Error(err))
		if failure.Is(err, failure.KindTransport) {
			return extract.Result{}
		}
		return res
	}
	if s.cache != nil {
		s.cache.CacheExtraction(ctx, pageURL, res)
	}
	return res
}

// RecordExtraction 单条记录的深度抽取结果
type RecordExtraction struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	MatchedRule bool   `json:"matchedRule"`
}

// DeepExtractForRecord 依次尝试规则抽取、通用抽取与站内搜索抽取，拿到正文后写回记录。
// 三种方式都拿不到正文时返回 KindEmpty 错误，记录保持不变
func (s *Service) DeepExtractForRecord(ctx context.Context, id string) (RecordExtraction, error) {
	if s.records == nil {
		return RecordExtraction{}, failure.Configuration("service.deep_extract", errNoRecordStore)
	}
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return RecordExtraction{}, fmt.Errorf("get record %s: %w", id, err)
	}
	out := RecordExtraction{ID: id}
	pageURL := strings.TrimSpace(rec.OriginalURL)

	ctx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	var res extract.Result
	if news.IsHTTPURL(pageURL) {
		rule, ok := s.matcher.Match(ctx, extract.Record{ID: id, Source: rec.Source, URL: pageURL})
		if ok {
			out.MatchedRule = true
			// 规则抽取为空时，已在同一份页面上做过通用抽取
			res, err = s.extractor.WithRule(ctx, pageURL, *rule)
			s.metrics.ObserveExtraction(strategyRule, err == nil)
		} else {
			res, err = s.extractor.FetchGeneric(ctx, pageURL)
			s.metrics.ObserveExtraction(strategyGeneric, err == nil)
		}
		if err != nil {
			s.logger.Info("record extract degraded", zap.String("id", id), zap.String("url", pageURL), zap.Error(err))
		}
	}

	if res.Content == "" {
		found := s.siteSearch(ctx, rec.Title, pageURL)
		s.metrics.ObserveExtraction(strategySiteSearch, found.Content != "")
		if res.Title == "" {
			res.Title = found.Title
		}
		res.Content = found.Content
	}

	out.Title = res.Title
	if out.Title == "" {
		out.Title = rec.Title
	}
	out.Content = res.Content
	if out.Content == "" {
		return out, failure.Empty("service.deep_extract", pageURL)
	}

	if err := s.records.UpdateDeepContent(ctx, id, out.Content); err != nil {
		return out, fmt.Errorf("update deep content %s: %w", id, err)
	}
	s.logger.Info("record extracted", zap.String("id", id),
		zap.Bool("matched_rule", out.MatchedRule), zap.Int("runes", len([]rune(out.Content))))
	return out, nil
}

// siteSearch 用记录标题在原站域名下搜索，取第一条结果的正文，拿不到正文时用其摘要
func (s *Service) siteSearch(ctx context.Context, title, pageURL string) extract.Result {
	title = strings.TrimSpace(title)
	if title == "" {
		return extract.Result{}
	}
	query := title
	if host := hostOf(pageURL); host != "" {
		query = "site:" + host + " " + title
	}

	c, err := s.crawler(ctx, siteSearchSource)
	if err != nil {
		s.logger.Warn("site search unavailable", zap.Error(err))
		return extract.Result{}
	}
	batch := c.FetchData(ctx, query, 1)
	if len(batch.Items) == 0 {
		return extract.Result{}
	}
	hit := batch.Items[0]

	res := extract.Result{Title: hit.Title}
	if hit.OriginalURL != "" && hit.OriginalURL != pageURL {
		if got, err := s.extractor.FetchGeneric(ctx, hit.OriginalURL); err == nil {
			if got.Title != "" {
				res.Title = got.Title
			}
			res.Content = got.Content
			return res
		}
	}
	if hit.Summary != news.NoSummary {
		res.Content = hit.Summary
	}
	return res
}

// BatchOutcome 批量深度抽取的结果，顺序与请求一致
type BatchOutcome struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// DeepExtractBatch 用有限的并发逐条抽取；每条记录独立提交，单条失败不影响其他记录
func (s *Service) DeepExtractBatch(ctx context.Context, ids []string) BatchOutcome {
	ids = uniqueIDs(ids)
	ok := make([]bool, len(ids))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			_, err := s.DeepExtractForRecord(ctx, id)
			if err != nil {
				s.logger.Info("batch deep extract failed", zap.String("id", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			ok[i] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := BatchOutcome{Succeeded: []string{}, Failed: []string{}}
	for i, id := range ids {
		if ok[i] {
			out.Succeeded = append(out.Succeeded, id)
		} else {
			out.Failed = append(out.Failed, id)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
