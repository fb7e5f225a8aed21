package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/service"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

// 命令行入口：单次采集、单 URL 抽取，以及按 CRAWL_JOBS 执行一轮采集入库
func main() {
	config.LoadEnvFiles()
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	var (
		debug     bool
		rulesFile string
	)

	root := &cobra.Command{
		Use:           "collect",
		Short:         "NewsDigest 采集命令行",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.Load()
			level := a.cfg.LogLevel
			if debug {
				level = "debug"
			}
			l, err := logger.New(logger.Config{Level: level, File: a.cfg.LogFile})
			if err != nil {
				return err
			}
			a.logger = l
			if rulesFile != "" {
				a.cfg.RulesFile = rulesFile
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&rulesFile, "rules", "", "extraction rules yaml (default $RULES_FILE)")

	root.AddCommand(a.sourcesCmd(), a.crawlCmd(), a.extractCmd(), a.runJobsCmd())
	return root
}

// offlineService 不连接数据库，规则从 YAML 文件读入内存
func (a *app) offlineService() (*service.Service, error) {
	rules, err := a.memoryRules()
	if err != nil {
		return nil, err
	}
	return service.New(service.Options{
		Registry: a.registry(),
		Rules:    rules,
		Fetcher:  webfetch.New(a.cfg.ExtractTimeout),
		Logger:   a.logger,

		StreamPace:     a.cfg.StreamPace,
		ExtractTimeout: a.cfg.ExtractTimeout,
		DeepWorkers:    a.cfg.DeepWorkers,
	}), nil
}

func (a *app) memoryRules() (*extract.MemoryRuleStore, error) {
	rules := extract.NewMemoryRuleStore()
	if a.cfg.RulesFile == "" {
		return rules, nil
	}
	list, err := extract.LoadRulesFile(a.cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		rules.Add(r)
	}
	return rules, nil
}

func (a *app) registry() *collector.Registry {
	return collector.NewRegistry(collector.Deps{
		Fetcher:  webfetch.New(a.cfg.CrawlTimeout),
		Resolver: webfetch.New(a.cfg.ResolveTimeout),
		Logger:   a.logger.Named("collector"),
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "列出内置数据源",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.offlineService()
			if err != nil {
				return err
			}
			return printJSON(cmd, svc.ListSources(cmd.Context()))
		},
	}
}

func (a *app) crawlCmd() *cobra.Command {
	var (
		source   string
		keyword  string
		maxCount int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "执行一次采集并输出展示结构的 JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.offlineService()
			if err != nil {
				return err
			}
			batch, err := svc.RunBatch(cmd.Context(), source, keyword, maxCount)
			if err != nil {
				return err
			}
			a.logger.Info("crawl finished", zap.String("status", string(batch.Status)), zap.Int("items", len(batch.Items)))
			return printJSON(cmd, batch.Items)
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "baidu", "source key or alias")
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "search keyword")
	cmd.Flags().IntVarP(&maxCount, "max", "n", collector.DefaultMaxCount, "max items")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "抽取单个文章页的标题与正文",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageURL := args[0]
			rules, err := a.memoryRules()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.ExtractTimeout)
			defer cancel()

			ex := extract.NewExtractor(webfetch.New(a.cfg.ExtractTimeout), rules, a.logger)
			var (
				res     extract.Result
				matched bool
			)
			if rule, ok := extract.NewMatcher(rules, a.logger).Match(ctx, extract.Record{Source: source, URL: pageURL}); ok {
				matched = true
				res, err = ex.WithRule(ctx, pageURL, *rule)
			} else {
				res, err = ex.FetchGeneric(ctx, pageURL)
			}
			if err != nil {
				a.logger.Info("extract degraded", zap.String("url", pageURL), zap.Error(err))
			}
			return printJSON(cmd, map[string]any{
				"title":       res.Title,
				"content":     res.Content,
				"matchedRule": matched,
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source name used for rule matching")
	return cmd
}

// runJobsCmd 只执行一轮 CRAWL_JOBS 采集任务后退出，适合手动触发
func (a *app) runJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-jobs",
		Short: "按 CRAWL_JOBS 执行一轮采集并入库",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewStore(a.cfg.PostgresDSN, a.cfg.RedisAddr, a.logger)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			svc := service.New(service.Options{
				Registry:       a.registry(),
				Sources:        store,
				Records:        store,
				Cache:          store,
				Rules:          store.Rules(),
				Logger:         a.logger,
				ExtractTimeout: a.cfg.ExtractTimeout,
				DeepWorkers:    a.cfg.DeepWorkers,
			})
			s, err := scheduler.New(a.cfg.CronSpec, a.cfg.CrawlJobs, svc, a.cfg.MaxCount, a.logger)
			if err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}
			s.RunOnce()
			return nil
		},
	}
}
