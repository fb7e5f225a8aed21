package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/api"
	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/metrics"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/service"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

func main() {
	config.LoadEnvFiles()
	cfg := config.Load()

	log := logger.Must(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
	if err != nil {
		log.Fatal("init store failed", zap.Error(err))
	}

	ctx := context.Background()
	// 内置数据源始终存在
	for key, name := range map[string]string{"baidu": "百度新闻", "xinhua": "新华网"} {
		if _, err := store.EnsureSource(ctx, key, name); err != nil {
			log.Fatal("ensure source failed", zap.String("source", key), zap.Error(err))
		}
	}
	if cfg.RulesFile != "" {
		rules, err := extract.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			log.Fatal("load rules file failed", zap.String("file", cfg.RulesFile), zap.Error(err))
		}
		if _, err := store.Rules().SeedRules(ctx, rules); err != nil {
			log.Warn("seed extraction rules failed", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	crawlers := collector.NewRegistry(collector.Deps{
		Fetcher:  webfetch.New(cfg.CrawlTimeout),
		Resolver: webfetch.New(cfg.ResolveTimeout),
		Logger:   log.Named("collector"),
	})
	svc := service.New(service.Options{
		Registry:       crawlers,
		Sources:        store,
		Records:        store,
		Cache:          store,
		Rules:          store.Rules(),
		Fetcher:        webfetch.New(cfg.ExtractTimeout),
		Metrics:        m,
		Logger:         log.Named("service"),
		StreamPace:     cfg.StreamPace,
		ExtractTimeout: cfg.ExtractTimeout,
		DeepWorkers:    cfg.DeepWorkers,
	})

	if cfg.SchedulerEnabled && len(cfg.CrawlJobs) > 0 {
		s, err := scheduler.New(cfg.CronSpec, cfg.CrawlJobs, svc, cfg.MaxCount, log.Named("scheduler"))
		if err != nil {
			log.Fatal("init scheduler failed", zap.Error(err))
		}
		s.Start()
		defer s.Stop()
	}

	// API
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(svc, store, m.Handler(), log.Named("api"))
	apiServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("starting api server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server exit", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
