// Package service 把注册表、抽取器与存储组合成对外的几个操作：
// 列出数据源、批量采集、流式采集与深度抽取。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/metrics"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/LJTian/NewsDigest/internal/stream"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

const (
	defaultExtractTimeout = 20 * time.Second
	defaultWorkers        = 4
)

var errNoRecordStore = errors.New("no record store configured")

// 始终可用的数据源，不依赖数据库配置
var builtinSources = []string{"baidu", "xinhua"}

// SourceStore 数据源配置
type SourceStore interface {
	ListEnabledSources(ctx context.Context) ([]storage.CrawlerSource, error)
	GetSource(ctx context.Context, key string) (*storage.CrawlerSource, error)
}

// RecordStore 已入库的新闻
type RecordStore interface {
	SaveBatch(ctx context.Context, items []processor.ProcessedNews) error
	GetRecord(ctx context.Context, id string) (*storage.NewsRecord, error)
	UpdateDeepContent(ctx context.Context, id, content string) error
}

// ExtractCache 单 URL 抽取结果缓存
type ExtractCache interface {
	CachedExtraction(ctx context.Context, pageURL string) (extract.Result, bool)
	CacheExtraction(ctx context.Context, pageURL string, res extract.Result)
}

// Options 除 Registry 外都可以为空；没有存储时只能做不落库的操作
type Options struct {
	Registry *collector.Registry
	Sources  SourceStore
	Records  RecordStore
	Cache    ExtractCache
	Rules    extract.RuleStore
	Fetcher  *webfetch.Fetcher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	StreamPace     time.Duration
	ExtractTimeout time.Duration
	DeepWorkers    int
}

type Service struct {
	registry  *collector.Registry
	sources   SourceStore
	records   RecordStore
	cache     ExtractCache
	extractor *extract.Extractor
	matcher   *extract.Matcher
	processor *processor.SimpleProcessor
	metrics   *metrics.Metrics
	logger    *zap.Logger

	pace           time.Duration
	extractTimeout time.Duration
	workers        int
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = collector.NewRegistry(collector.Deps{Logger: logger})
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = webfetch.New(defaultExtractTimeout)
	}
	rules := opts.Rules
	if rules == nil {
		rules = extract.NewMemoryRuleStore()
	}

	s := &Service{
		registry:       reg,
		sources:        opts.Sources,
		records:        opts.Records,
		cache:          opts.Cache,
		extractor:      extract.NewExtractor(fetcher, rules, logger),
		matcher:        extract.NewMatcher(rules, logger),
		processor:      processor.NewSimpleProcessor(),
		metrics:        opts.Metrics,
		logger:         logger,
		pace:           opts.StreamPace,
		extractTimeout: opts.ExtractTimeout,
		workers:        opts.DeepWorkers,
	}
	if s.pace < 0 {
		s.pace = 0
	}
	if s.extractTimeout <= 0 {
		s.extractTimeout = defaultExtractTimeout
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	return s
}

// Source 可供选择的数据源
type Source struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

// ListSources 内置数据源在前，其后是数据库中启用且已登记的数据源；读库失败时只返回内置数据源
func (s *Service) ListSources(ctx context.Context) []Source {
	out := make([]Source, 0, len(builtinSources))
	seen := make(map[string]struct{})
	for _, k := range builtinSources {
		out = append(out, Source{Key: k, DisplayName: s.registry.DisplayName(k)})
		seen[k] = struct{}{}
	}
	if s.sources == nil {
		return out
	}

	rows, err := s.sources.ListEnabledSources(ctx)
	if err != nil {
		s.logger.Warn("list crawler sources failed", zap.Error(err))
		return out
	}
	for _, row := range rows {
		key, ok := s.registry.Resolve(row.Key)
		if !ok {
			s.logger.Debug("skip unregistered source", zap.String("key", row.Key))
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		name := strings.TrimSpace(row.DisplayName)
		if name == "" {
			name = s.registry.DisplayName(key)
		}
		out = append(out, Source{Key: key, DisplayName: name})
	}
	return out
}

// HasSource key 或别名是否已登记
func (s *Service) HasSource(key string) bool {
	_, ok := s.registry.Resolve(key)
	return ok
}

// crawler 按数据库里的数据源配置创建爬虫；读不到配置或数据源已停用时用默认配置
func (s *Service) crawler(ctx context.Context, key string) (collector.Crawler, error) {
	canonical, ok := s.registry.Resolve(key)
	if !ok {
		return nil, failure.Configuration("service.crawler", fmt.Errorf("unknown source %q", key))
	}
	var opts map[string]any
	if s.sources != nil {
		src, err := s.sources.GetSource(ctx, canonical)
		if err != nil {
			s.logger.Warn("load source config failed, use defaults", zap.String("source", canonical), zap.Error(err))
		} else if src != nil && src.Enabled && len(src.Config) > 0 {
			opts = map[string]any(src.Config)
		}
	}
	return s.registry.Create(canonical, opts)
}

// Batch 一次批量采集的结果
type Batch struct {
	Source   string           `json:"source"`
	Keyword  string           `json:"keyword"`
	Status   collector.Status `json:"status"`
	Items    []news.Item      `json:"items"`
	Failures int              `json:"failures"`
}

// RunBatch 只有数据源未登记或配置非法时返回错误；抓取失败体现在 Status 中
func (s *Service) RunBatch(ctx context.Context, key, keyword string, maxCount int) (Batch, error) {
	c, err := s.crawler(ctx, key)
	if err != nil {
		return Batch{}, err
	}
	if maxCount <= 0 {
		maxCount = collector.DefaultMaxCount
	}

	start := time.Now()
	res := c.FetchData(ctx, keyword, maxCount)
	items := c.ToDisplaySchema(res.Items)

	kinds := make([]string, 0, len(res.Failures))
	for _, ferr := range res.Failures {
		kinds = append(kinds, string(failure.KindOf(ferr)))
		s.logger.Info("crawl degraded", zap.String("source", c.Name()), zap.Error(ferr))
	}
	s.metrics.ObserveCrawl(c.Name(), len(items), kinds, time.Since(start))
	s.logger.Info("crawl done",
		zap.String("source", c.Name()),
		zap.String("keyword", keyword),
		zap.Int("items", len(items)),
		zap.String("status", string(res.Status())),
		zap.Duration("elapsed", time.Since(start)))

	return Batch{
		Source:   c.Name(),
		Keyword:  keyword,
		Status:   res.Status(),
		Items:    items,
		Failures: len(res.Failures),
	}, nil
}

// SaveBatch 清洗后入库，返回写入条数
func (s *Service) SaveBatch(ctx context.Context, keyword string, items []news.Item) (int, error) {
	if s.records == nil {
		return 0, failure.Configuration("service.save", errNoRecordStore)
	}
	processed := s.processor.Process(items, keyword)
	if len(processed) == 0 {
		return 0, nil
	}
	if err := s.records.SaveBatch(ctx, processed); err != nil {
		return 0, err
	}
	return len(processed), nil
}

// RunStream 按流式协议推送采集结果；pace 小于 0 时使用配置的默认节奏。
// 数据源未登记时不发送任何事件直接返回错误
func (s *Service) RunStream(ctx context.Context, key, keyword string, maxCount int, pace time.Duration, emit func(stream.Event) error) (int, error) {
	c, err := s.crawler(ctx, key)
	if err != nil {
		return 0, err
	}
	if pace < 0 {
		pace = s.pace
	}

	id := uuid.NewString()
	log := s.logger.With(zap.String("stream_id", id), zap.String("source", c.Name()))
	done := s.metrics.StreamOpened()
	defer done()

	log.Info("stream opened", zap.String("keyword", keyword), zap.Int("max", maxCount))
	sent, err := stream.Run(ctx, c, stream.Request{Keyword: keyword, MaxCount: maxCount, Pace: pace},
		func(ev stream.Event) error {
			if ev.Name == stream.EventItem {
				s.metrics.ObserveItem(c.Name())
			}
			return emit(ev)
		})
	if err != nil {
		log.Info("stream stopped", zap.Int("sent", sent), zap.Error(err))
		return sent, err
	}
	log.Info("stream done", zap.Int("sent", sent))
	return sent, nil
}
