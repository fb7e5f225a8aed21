package storage

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *zap.Logger
}

func NewStore(dsn, redisAddr string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ExtractionRule{}, &CrawlerSource{}, &NewsRecord{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
	}

	return NewStoreWithDB(db, rdb, logger), nil
}

// NewStoreWithDB 使用已打开的连接，rdb 可以为 nil（不走缓存）
func NewStoreWithDB(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{DB: db, Redis: rdb, logger: logger}
}

// 东八区，用于日期展示与筛选
var locEast8 *time.Location

func init() {
	locEast8, _ = time.LoadLocation("Asia/Shanghai")
	if locEast8 == nil {
		locEast8 = time.FixedZone("CST", 8*3600)
	}
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
