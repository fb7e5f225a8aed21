package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string
	// SchedulerEnabled 关闭后只提供接口，不跑定时采集
	SchedulerEnabled bool
	// CrawlJobs 定时采集任务，格式 "baidu:成都;sina:"，冒号后为关键词
	CrawlJobs []CrawlJob

	StreamPace     time.Duration
	CrawlTimeout   time.Duration
	ExtractTimeout time.Duration
	ResolveTimeout time.Duration
	DeepWorkers    int
	MaxCount       int

	LogLevel string
	LogFile  string

	RulesFile string

	BasicAuthUser string
	BasicAuthPass string
}

// CrawlJob 一个定时采集任务
type CrawlJob struct {
	Source  string
	Keyword string
}

// LoadEnvFiles 依次加载 .env.local 与 .env，已存在的环境变量不会被覆盖；文件不存在时忽略
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Printf("warn: load %s failed: %v", f, err)
		}
	}
}

func Load() *Config {
	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "9000"),
		PostgresDSN:      getEnv("POSTGRES_DSN", "host=localhost user=newsdigest password=newsdigest dbname=newsdigest port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6380"),
		CronSpec:         getEnv("CRON_SPEC", "*/30 * * * *"),
		SchedulerEnabled: getBool("SCHEDULER_ENABLED", true),
		CrawlJobs:        ParseCrawlJobs(getEnv("CRAWL_JOBS", "baidu:;xinhua:")),
		StreamPace:       time.Duration(getInt("STREAM_PACE_MS", 350)) * time.Millisecond,
		CrawlTimeout:     getDuration("CRAWL_TIMEOUT", 12*time.Second),
		ExtractTimeout:   getDuration("EXTRACT_TIMEOUT", 20*time.Second),
		ResolveTimeout:   getDuration("RESOLVE_TIMEOUT", 8*time.Second),
		DeepWorkers:      getInt("DEEP_WORKERS", 4),
		MaxCount:         getInt("CRAWL_MAX_COUNT", 30),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		RulesFile:        os.Getenv("RULES_FILE"),
		BasicAuthUser:    os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:    os.Getenv("APP_BASIC_PASS"),
	}
	if cfg.StreamPace < 0 {
		cfg.StreamPace = 0
	}
	if cfg.DeepWorkers <= 0 {
		cfg.DeepWorkers = 1
	}

	log.Printf("config loaded: port=%s cron=%s jobs=%d", cfg.AppPort, cfg.CronSpec, len(cfg.CrawlJobs))
	return cfg
}

// ParseCrawlJobs 解析 "key:keyword;key2:keyword2"；没有冒号时关键词为空
func ParseCrawlJobs(s string) []CrawlJob {
	var jobs []CrawlJob
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		src, kw, _ := strings.Cut(part, ":")
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		jobs = append(jobs, CrawlJob{Source: src, Keyword: strings.TrimSpace(kw)})
	}
	return jobs
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("warn: invalid %s=%q, use %d", key, v, def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("warn: invalid %s=%q, use %t", key, v, def)
		return def
	}
	return b
}

// getDuration 支持 "15s" 这类写法，也支持纯数字秒
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warn: invalid %s=%q, use %s", key, v, def)
		return def
	}
	return d
}
