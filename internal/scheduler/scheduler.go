package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/service"
)

// 单个任务的整体超时，包含翻页间隔
const jobTimeout = 2 * time.Minute

// Runner 定时任务需要的采集与入库能力，*service.Service 实现了它
type Runner interface {
	RunBatch(ctx context.Context, key, keyword string, maxCount int) (service.Batch, error)
	SaveBatch(ctx context.Context, keyword string, items []news.Item) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	jobs     []config.CrawlJob
	runner   Runner
	maxCount int
	logger   *zap.Logger
}

func New(spec string, jobs []config.CrawlJob, runner Runner, maxCount int, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()

	s := &Scheduler{
		cron:     c,
		jobs:     jobs,
		runner:   runner,
		maxCount: maxCount,
		logger:   logger,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮采集，避免与启动时的其他初始化争抢资源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	s.logger.Info("start collect job", zap.Int("jobs", len(s.jobs)))

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(job)
		}()
	}

	wg.Wait()
	s.logger.Info("collect job done (all sources)")
}

func (s *Scheduler) runJob(job config.CrawlJob) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	log := s.logger.With(zap.String("source", job.Source), zap.String("keyword", job.Keyword))
	batch, err := s.runner.RunBatch(ctx, job.Source, job.Keyword, s.maxCount)
	if err != nil {
		log.Error("crawl job failed", zap.Error(err))
		return
	}
	if len(batch.Items) == 0 {
		log.Info("crawl job got 0 items", zap.String("status", string(batch.Status)))
		return
	}
	saved, err := s.runner.SaveBatch(ctx, job.Keyword, batch.Items)
	if err != nil {
		log.Error("save batch failed", zap.Error(err))
		return
	}
	// 条数 = 本轮采集解析到的数量（非"新增数"，已存在会更新）
	log.Info("crawl job done", zap.Int("fetched", len(batch.Items)), zap.Int("saved", saved))
}
